// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != UserAgent {
			t.Errorf("request User-Agent = %q", ua)
		}
		if key := r.Header.Get("API-Key"); key != "testing" {
			t.Errorf("request API-Key = %q", key)
		}
		w.Write([]byte(`{"name":"example.com"}`))
	}))
	defer srv.Close()

	var got struct {
		Name string `json:"name"`
	}
	err := getJSON(context.Background(), srv.Client(), srv.URL,
		map[string]string{"API-Key": "testing"}, &got)
	if err != nil {
		t.Fatalf("getJSON() error = %v", err)
	}
	if got.Name != "example.com" {
		t.Errorf("decoded name = %q", got.Name)
	}
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var got struct{}
	err := getJSON(context.Background(), srv.Client(), srv.URL, nil, &got)
	if err == nil {
		t.Fatal("getJSON() returned no error for a 404")
	}
	if !isNotFound(err) {
		t.Errorf("isNotFound() = false for %v", err)
	}
}

func TestProbeAttempt(t *testing.T) {
	var sawGet bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			sawGet = true
			w.Write([]byte(strings.Repeat("x", 64)))
		}
	}))
	defer srv.Close()

	p := NewHTTPProbe(time.Second, nil)
	p.client = srv.Client()

	result, retry := p.attempt(context.Background(), http.MethodHead, srv.URL)
	if result != nil || !retry {
		t.Fatalf("attempt(HEAD) = (%v, %v), want a GET fallback", result, retry)
	}

	result, _ = p.attempt(context.Background(), http.MethodGet, srv.URL)
	if result == nil || !sawGet {
		t.Fatal("attempt(GET) did not reach the server")
	}
	if !result.Active || result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Errorf("attempt(GET) = %+v, want an active 200 result", result)
	}
}

func TestProbeRedirectChain(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.Redirect(w, r, srv.URL+"/a", http.StatusFound)
		case "/a":
			http.Redirect(w, r, srv.URL+"/b", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := NewHTTPProbe(time.Second, nil)
	client := srv.Client()
	client.CheckRedirect = p.client.CheckRedirect
	p.client = client

	result, _ := p.attempt(context.Background(), http.MethodGet, srv.URL)
	if result == nil {
		t.Fatal("attempt() failed against the local server")
	}
	if result.ChainLength != 2 {
		t.Errorf("ChainLength = %d, want 2", result.ChainLength)
	}
	if !strings.HasSuffix(result.FinalURL, "/b") {
		t.Errorf("FinalURL = %s, want the end of the chain", result.FinalURL)
	}
}

func TestProbeUnreachable(t *testing.T) {
	p := NewHTTPProbe(200*time.Millisecond, nil)

	result := p.Probe(context.Background(), "host.invalid")
	if result == nil {
		t.Fatal("Probe() returned nil")
	}
	if result.Active || result.StatusCode != nil {
		t.Errorf("Probe() of an unreachable host = %+v, want inactive", result)
	}
}

func TestEnricherRateLimiters(t *testing.T) {
	ct := NewCertTransparency(nil, nil)
	if ct.limiter == nil || ct.limiter.Limit() != rate.Limit(ctRequestsPerSecond) {
		t.Error("the certificate transparency client is not rate limited")
	}

	p := NewHTTPProbe(time.Second, nil)
	if p.limiter == nil || p.limiter.Limit() != rate.Limit(probeRequestsPerSecond) {
		t.Error("the http probe is not rate limited")
	}

	// A cancelled context releases a limited probe without a request
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.limiter = rate.NewLimiter(rate.Limit(0), 0)
	if result := p.Probe(ctx, "host.invalid"); result == nil || result.StatusCode != nil {
		t.Errorf("Probe() under an exhausted limiter = %+v, want an empty result", result)
	}
}
