// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/caffix/stringset"
	"github.com/chiefgyk3d/typo-sniper/cache"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/semaphore"
	"golang.org/x/time/rate"
)

const (
	// CTNamespace identifies certificate transparency entries in the cache.
	CTNamespace = "ct"
	// CTMaxConcurrent bounds simultaneous log queries.
	CTMaxConcurrent = 10

	ctQueryURL = "https://crt.sh/"
	ctTimeout  = 15 * time.Second
	ctTTL      = 24 * time.Hour

	// ctRequestsPerSecond keeps the load on the public index modest.
	ctRequestsPerSecond = 2
)

// CertTransparency queries the public crt.sh certificate transparency index.
type CertTransparency struct {
	cache   *cache.Cache
	client  *http.Client
	limiter *rate.Limiter
	sem     semaphore.Semaphore
	log     *slog.Logger
}

// NewCertTransparency returns a CT enricher backed by the provided cache.
func NewCertTransparency(c *cache.Cache, log *slog.Logger) *CertTransparency {
	if log == nil {
		log = slog.Default()
	}

	return &CertTransparency{
		cache:   c,
		client:  newHTTPClient(ctTimeout),
		limiter: rate.NewLimiter(rate.Limit(ctRequestsPerSecond), ctRequestsPerSecond),
		sem:     semaphore.NewSimpleSemaphore(CTMaxConcurrent),
		log:     log,
	}
}

// Enabled reports whether the enricher can be used. CT requires no key.
func (t *CertTransparency) Enabled() bool {
	return t != nil
}

type ctEntry struct {
	IssuerName     string `json:"issuer_name"`
	CommonName     string `json:"common_name"`
	EntryTimestamp string `json:"entry_timestamp"`
}

// ctTimestampLayout matches crt.sh timestamps, with or without fractional
// seconds.
const ctTimestampLayout = "2006-01-02T15:04:05.999999"

// Lookup returns the certificate history for the domain. Entries are cached
// for a day regardless of the cache default.
func (t *CertTransparency) Lookup(ctx context.Context, domain string) (*report.CTResult, error) {
	var result report.CTResult

	err := t.cache.Do(ctx, CTNamespace, domain, &result, ctTTL, func(ctx context.Context) (interface{}, error) {
		if !t.sem.AcquireCtx(ctx) {
			return nil, ctx.Err()
		}
		defer t.sem.Release()

		return t.fetch(ctx, domain)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (t *CertTransparency) fetch(ctx context.Context, domain string) (*report.CTResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", domain)
	q.Set("output", "json")

	var entries []ctEntry
	if err := getJSON(ctx, t.client, ctQueryURL+"?"+q.Encode(), nil, &entries); err != nil {
		return nil, fmt.Errorf("certificate transparency query failed for %s: %w", domain, err)
	}

	result := &report.CTResult{Count: len(entries)}
	issuers := stringset.New()

	for _, e := range entries {
		if e.IssuerName != "" {
			issuers.Insert(e.IssuerName)
		}
		ts, err := time.Parse(ctTimestampLayout, e.EntryTimestamp)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if result.FirstSeen == nil || ts.Before(*result.FirstSeen) {
			first := ts
			result.FirstSeen = &first
		}
		if result.LastSeen == nil || ts.After(*result.LastSeen) {
			last := ts
			result.LastSeen = &last
		}
	}

	slice := issuers.Slice()
	sort.Strings(slice)
	result.Issuers = slice
	return result, nil
}
