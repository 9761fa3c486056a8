// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package whois wraps registration data lookups with caching, retries and a
// concurrency ceiling, normalizing the registrar responses into the record
// schema.
package whois

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chiefgyk3d/typo-sniper/cache"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/semaphore"
	whoisclient "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

const (
	// Namespace identifies WHOIS entries in the cache.
	Namespace = "whois"
	// TTL applied to unparseable responses and unreachable registrars.
	negativeTTL = 10 * time.Minute
	// MaxConcurrent bounds simultaneous registrar connections.
	MaxConcurrent = 8
)

// Layouts observed across registrar WHOIS responses.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"20060102",
	"January 2 2006",
	"2006/01/02",
}

var privacyMarkers = []string{
	"privacy", "redacted", "whoisguard", "domains by proxy",
	"withheld", "proxy protection", "identity protect", "contact privacy",
}

// Client performs WHOIS lookups for registered candidate domains.
type Client struct {
	cache      *cache.Cache
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	sem        semaphore.Semaphore
	log        *slog.Logger
	override   struct {
		query func(context.Context, string) (string, error)
	}
}

// NewClient returns a Client backed by the provided cache.
func NewClient(c *cache.Cache, timeout time.Duration, retries int, retryDelay time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cache:      c,
		timeout:    timeout,
		retries:    retries,
		retryDelay: retryDelay,
		sem:        semaphore.NewSimpleSemaphore(MaxConcurrent),
		log:        log,
	}
}

// Lookup returns the normalized registration data for the domain. A lookup
// that reaches the registrar but cannot be parsed still produces a result
// with RawOK unset, cached with a short TTL. An unreachable registrar is
// cached the same way so the domain is left alone until the TTL expires.
func (c *Client) Lookup(ctx context.Context, domain string) (*report.WhoisInfo, error) {
	query := c.query
	if c.override.query != nil {
		query = c.override.query
	}

	var info report.WhoisInfo
	err := c.cache.Do(ctx, Namespace, domain, &info, 0, func(ctx context.Context) (interface{}, error) {
		if !c.sem.AcquireCtx(ctx) {
			return nil, ctx.Err()
		}
		defer c.sem.Release()

		raw, err := query(ctx, domain)
		if err != nil {
			return nil, err
		}
		return parse(raw), nil
	})
	if err != nil {
		if ctx.Err() == nil {
			_ = c.cache.Put(Namespace, domain, &report.WhoisInfo{}, negativeTTL)
		}
		return nil, err
	}

	// Unparseable responses expire quickly so a flapping registrar is
	// retried on the next scan
	if !info.RawOK {
		_ = c.cache.Put(Namespace, domain, &info, negativeTTL)
	}
	return &info, nil
}

func (c *Client) query(ctx context.Context, domain string) (string, error) {
	client := whoisclient.NewClient()
	client.SetTimeout(c.timeout)

	var raw string
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if raw, err = client.Whois(domain); err == nil {
			return raw, nil
		}
		c.log.Debug("WHOIS attempt failed",
			"domain", domain, "attempt", attempt+1, "err", err)
	}
	return "", err
}

func parse(raw string) *report.WhoisInfo {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		return &report.WhoisInfo{}
	}

	info := &report.WhoisInfo{RawOK: true}
	if d := parsed.Domain; d != nil {
		info.NameServers = lowerAll(d.NameServers)
		info.Status = lowerAll(d.Status)
		info.CreationDate = parseDate(d.CreatedDate)
		info.UpdatedDate = parseDate(d.UpdatedDate)
		info.ExpirationDate = parseDate(d.ExpirationDate)
	}
	if r := parsed.Registrar; r != nil {
		info.Registrar = r.Name
	}
	if r := parsed.Registrant; r != nil {
		info.Registrant = r.Name
		info.Organization = r.Organization
		info.Country = r.Country
	}
	for _, contact := range []*whoisparser.Contact{
		parsed.Registrant, parsed.Administrative, parsed.Technical,
	} {
		if contact != nil && contact.Email != "" {
			info.Emails = appendUnique(info.Emails, strings.ToLower(contact.Email))
		}
	}

	info.PrivacyProxy = isPrivacyProtected(info)
	return info
}

// parseDate tries the known registrar layouts and returns nil when none fit.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func isPrivacyProtected(info *report.WhoisInfo) bool {
	fields := append([]string{info.Registrant, info.Organization, info.Registrar},
		info.Emails...)

	for _, f := range fields {
		f = strings.ToLower(f)
		for _, marker := range privacyMarkers {
			if strings.Contains(f, marker) {
				return true
			}
		}
	}
	return false
}

func lowerAll(values []string) []string {
	var results []string

	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			results = append(results, v)
		}
	}
	return results
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
