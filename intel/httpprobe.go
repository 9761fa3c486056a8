// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/semaphore"
	"golang.org/x/time/rate"
)

const (
	// HTTPProbeMaxConcurrent bounds simultaneous probes.
	HTTPProbeMaxConcurrent = 20

	maxRedirects = 5
	maxBodyRead  = 4 * 1024

	// probeRequestsPerSecond paces candidate probing below the pool size.
	probeRequestsPerSecond = 10
)

// HTTPProbe checks whether a candidate domain serves live web content.
type HTTPProbe struct {
	client  *http.Client
	limiter *rate.Limiter
	sem     semaphore.Semaphore
	log     *slog.Logger
}

// NewHTTPProbe returns a probe enricher with the provided per-request timeout.
func NewHTTPProbe(timeout time.Duration, log *slog.Logger) *HTTPProbe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	client := newHTTPClient(timeout)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	return &HTTPProbe{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(probeRequestsPerSecond), probeRequestsPerSecond),
		sem:     semaphore.NewSimpleSemaphore(HTTPProbeMaxConcurrent),
		log:     log,
	}
}

// Enabled reports whether the enricher can be used.
func (p *HTTPProbe) Enabled() bool {
	return p != nil
}

// Probe attempts HTTPS then HTTP, preferring HEAD and falling back to GET.
// It never fails: an unreachable domain yields an inactive result with a nil
// status code.
func (p *HTTPProbe) Probe(ctx context.Context, domain string) *report.HTTPProbeResult {
	if !p.sem.AcquireCtx(ctx) {
		return &report.HTTPProbeResult{}
	}
	defer p.sem.Release()

	if err := p.limiter.Wait(ctx); err != nil {
		return &report.HTTPProbeResult{}
	}

	for _, scheme := range []string{"https", "http"} {
		for _, method := range []string{http.MethodHead, http.MethodGet} {
			result, retry := p.attempt(ctx, method, scheme+"://"+domain)
			if result != nil {
				return result
			}
			if !retry {
				break
			}
		}
	}
	return &report.HTTPProbeResult{}
}

// attempt returns a nil result when the request failed; retry indicates the
// failure mode warrants falling back to GET on the same scheme.
func (p *HTTPProbe) attempt(ctx context.Context, method, target string) (result *report.HTTPProbeResult, retry bool) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyRead))

	// Servers that reject HEAD outright get one GET attempt
	if method == http.MethodHead && resp.StatusCode == http.StatusMethodNotAllowed {
		return nil, true
	}

	code := resp.StatusCode
	return &report.HTTPProbeResult{
		StatusCode:  &code,
		Active:      code >= 200 && code < 400,
		FinalURL:    resp.Request.URL.String(),
		ChainLength: chainLength(resp),
	}, false
}

// chainLength counts the redirects followed to reach the final response.
func chainLength(resp *http.Response) int {
	var count int

	for r := resp.Request; r != nil && r.Response != nil; r = r.Response.Request {
		count++
	}
	return count
}
