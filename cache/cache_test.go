// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()

	c, err := New(t.TempDir(), ttl, nil)
	if err != nil {
		t.Fatalf("New() error = %v, wantErr <nil>", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)
	want := payload{Name: "example.com", Count: 3}

	if err := c.Put("whois", "example.com", &want, 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var got payload
	if err := c.Get("whois", "example.com", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)

	// A sub-second TTL truncates to zero seconds and expires on the next read
	if err := c.Put("whois", "example.com", &payload{Name: "x"}, time.Millisecond); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	var got payload
	if err := c.Get("whois", "example.com", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrMiss", err)
	}
	if _, err := os.Stat(c.path("whois", "example.com")); !os.IsNotExist(err) {
		t.Error("the expired entry was not removed on read")
	}
}

func TestLayout(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.Put("urlscan", "example.com|7", &payload{}, 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	path := c.path("urlscan", "example.com|7")
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		t.Fatalf("Rel() error = %v", err)
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 3 || parts[0] != "urlscan" {
		t.Fatalf("unexpected entry layout: %s", rel)
	}
	if len(parts[1]) != 2 || !strings.HasPrefix(parts[2], parts[1]) {
		t.Errorf("entry is not sharded by digest prefix: %s", rel)
	}
	if len(parts[2]) != 64+len(".entry") {
		t.Errorf("entry filename is not a sha256 hex digest: %s", parts[2])
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("entry file was not written: %v", err)
	}
}

func TestSingleFlight(t *testing.T) {
	c := newTestCache(t, time.Hour)

	var fetches int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return &payload{Name: "shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([]payload, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = c.Do(context.Background(), "ct", "example.com", &results[idx], 0, fetch)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("Do() performed %d fetches for one key, want 1", n)
	}
	for i, r := range results {
		if r.Name != "shared" {
			t.Errorf("caller %d received %+v, want the shared result", i, r)
		}
	}
}

func TestDoFailureNotCached(t *testing.T) {
	c := newTestCache(t, time.Hour)

	boom := errors.New("upstream down")
	var got payload
	err := c.Do(context.Background(), "ct", "bad.example", &got, 0,
		func(ctx context.Context) (interface{}, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want the fetch error", err)
	}

	if err := c.Get("ct", "bad.example", &got); !errors.Is(err, ErrMiss) {
		t.Error("a failed fetch was written to the cache")
	}
}

func TestClearExpiredAndStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Put("whois", "a.example", &payload{}, time.Hour)
	_ = c.Put("whois", "b.example", &payload{}, time.Hour)

	// Corrupt one entry so it counts as expired
	path := c.path("whois", "b.example")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to corrupt the entry: %v", err)
	}

	stats := c.GetStats()
	if stats.TotalEntries != 2 {
		t.Errorf("GetStats() total = %d, want 2", stats.TotalEntries)
	}
	if stats.ExpiredEntries != 1 {
		t.Errorf("GetStats() expired = %d, want 1", stats.ExpiredEntries)
	}

	if n := c.ClearExpired(); n != 1 {
		t.Errorf("ClearExpired() = %d, want 1", n)
	}
	if n := c.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
}
