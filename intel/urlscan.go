// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chiefgyk3d/typo-sniper/cache"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/semaphore"
	"golang.org/x/time/rate"
)

const (
	// URLScanNamespace identifies URLScan entries in the cache.
	URLScanNamespace = "urlscan"
	// URLScanMaxConcurrent bounds simultaneous API interactions.
	URLScanMaxConcurrent = 4

	urlscanSearchURL = "https://urlscan.io/api/v1/search/"
	urlscanScanURL   = "https://urlscan.io/api/v1/scan/"
	urlscanResultURL = "https://urlscan.io/api/v1/result/"

	urlscanPollInterval = 5 * time.Second
)

// ErrScanPending is returned when a submitted scan did not complete within
// the wait timeout.
var ErrScanPending = errors.New("the submitted scan did not complete in time")

// URLScan queries and submits scans through the urlscan.io API.
type URLScan struct {
	key          string
	visibility   string
	maxAgeDays   int
	waitTimeout  time.Duration
	pollInterval time.Duration
	searchURL    string
	scanURL      string
	resultURL    string
	cache        *cache.Cache
	client       *http.Client
	limiter      *rate.Limiter
	sem          semaphore.Semaphore
	log          *slog.Logger
}

// NewURLScan returns a URLScan enricher, or nil when no API key was resolved.
func NewURLScan(key, visibility string, maxAgeDays int, waitTimeout time.Duration, c *cache.Cache, log *slog.Logger) *URLScan {
	if key == "" {
		return nil
	}
	if visibility == "" {
		visibility = "public"
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	if waitTimeout <= 0 {
		waitTimeout = 90 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &URLScan{
		key:          key,
		visibility:   visibility,
		maxAgeDays:   maxAgeDays,
		waitTimeout:  waitTimeout,
		pollInterval: urlscanPollInterval,
		searchURL:    urlscanSearchURL,
		scanURL:      urlscanScanURL,
		resultURL:    urlscanResultURL,
		cache:        c,
		client:       newHTTPClient(30 * time.Second),
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
		sem:          semaphore.NewSimpleSemaphore(URLScanMaxConcurrent),
		log:          log,
	}
}

// Enabled reports whether the enricher can be used.
func (u *URLScan) Enabled() bool {
	return u != nil && u.key != ""
}

func (u *URLScan) headers() map[string]string {
	return map[string]string{"API-Key": u.key}
}

// Lookup returns the verdict for the domain, reusing a recent existing scan
// when one exists and submitting a new one otherwise. Results are cached
// under the domain and the configured max age.
func (u *URLScan) Lookup(ctx context.Context, domain string) (*report.URLScanResult, error) {
	key := fmt.Sprintf("%s|%d", domain, u.maxAgeDays)

	var result report.URLScanResult
	err := u.cache.Do(ctx, URLScanNamespace, key, &result, 0, func(ctx context.Context) (interface{}, error) {
		if !u.sem.AcquireCtx(ctx) {
			return nil, ctx.Err()
		}
		defer u.sem.Release()

		return u.fetch(ctx, domain)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (u *URLScan) fetch(ctx context.Context, domain string) (*report.URLScanResult, error) {
	if existing, err := u.search(ctx, domain); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	uuid, err := u.submit(ctx, domain)
	if err != nil {
		return nil, err
	}
	return u.poll(ctx, uuid)
}

type urlscanSearchResponse struct {
	Results []struct {
		Task struct {
			UUID string    `json:"uuid"`
			Time time.Time `json:"time"`
		} `json:"task"`
	} `json:"results"`
}

type urlscanResultResponse struct {
	Task struct {
		Time          time.Time `json:"time"`
		ReportURL     string    `json:"reportURL"`
		ScreenshotURL string    `json:"screenshotURL"`
	} `json:"task"`
	Verdicts struct {
		Overall struct {
			Score       int  `json:"score"`
			Malicious   bool `json:"malicious"`
			HasVerdicts bool `json:"hasVerdicts"`
		} `json:"overall"`
	} `json:"verdicts"`
}

// search returns the most recent existing scan within the max age window, or
// nil when the domain has none.
func (u *URLScan) search(ctx context.Context, domain string) (*report.URLScanResult, error) {
	q := url.Values{}
	q.Set("q", "domain:"+domain)
	q.Set("size", "1")

	var resp urlscanSearchResponse
	if err := getJSON(ctx, u.client, u.searchURL+"?"+q.Encode(), u.headers(), &resp); err != nil {
		return nil, fmt.Errorf("urlscan search failed for %s: %w", domain, err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	hit := resp.Results[0]
	if time.Since(hit.Task.Time) > time.Duration(u.maxAgeDays)*24*time.Hour {
		return nil, nil
	}

	result, err := u.result(ctx, hit.Task.UUID)
	if err != nil {
		return nil, err
	}
	result.Source = report.SourceExisting
	return result, nil
}

// submit posts a new scan and returns its UUID.
func (u *URLScan) submit(ctx context.Context, domain string) (string, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := map[string]string{
		"url":        "https://" + domain,
		"visibility": u.visibility,
	}
	var resp struct {
		UUID string `json:"uuid"`
	}
	if err := postJSON(ctx, u.client, u.scanURL, u.headers(), body, &resp); err != nil {
		return "", fmt.Errorf("urlscan submission failed for %s: %w", domain, err)
	}

	u.log.Debug("Submitted a URLScan analysis", "domain", domain, "uuid", resp.UUID)
	return resp.UUID, nil
}

// poll waits for a submitted scan to finish, checking at a fixed interval
// until the wait timeout elapses.
func (u *URLScan) poll(ctx context.Context, uuid string) (*report.URLScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, u.waitTimeout)
	defer cancel()

	t := time.NewTicker(u.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ErrScanPending
		case <-t.C:
			result, err := u.result(ctx, uuid)
			if err == nil {
				result.Source = report.SourceSubmitted
				return result, nil
			}
			// The wait timeout can land mid-request; that is still a
			// pending scan, not a failure
			if ctx.Err() != nil {
				return nil, ErrScanPending
			}
			// The API answers 404 until processing completes
			if !isNotFound(err) {
				return nil, err
			}
		}
	}
}

func (u *URLScan) result(ctx context.Context, uuid string) (*report.URLScanResult, error) {
	var resp urlscanResultResponse
	if err := getJSON(ctx, u.client, u.resultURL+uuid+"/", u.headers(), &resp); err != nil {
		return nil, err
	}

	overall := resp.Verdicts.Overall
	result := &report.URLScanResult{
		Verdict:       verdictOf(overall.Malicious, overall.Score, overall.HasVerdicts),
		Score:         clampScore(overall.Score),
		ReportURL:     resp.Task.ReportURL,
		ScreenshotURL: resp.Task.ScreenshotURL,
	}
	if !resp.Task.Time.IsZero() {
		result.ScanAgeDays = int(time.Since(resp.Task.Time).Hours() / 24)
	}
	return result, nil
}

func verdictOf(malicious bool, score int, hasVerdicts bool) string {
	switch {
	case malicious:
		return report.VerdictMalicious
	case score >= 40:
		return report.VerdictSuspicious
	case hasVerdicts || score > 0:
		return report.VerdictClean
	default:
		return report.VerdictUnknown
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
