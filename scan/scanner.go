// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package scan orchestrates the pipeline per seed: permutation generation,
// DNS admission, parallel enrichment, scoring, filtering and ordering.
package scan

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffix/queue"
	"github.com/chiefgyk3d/typo-sniper/config"
	"github.com/chiefgyk3d/typo-sniper/fuzz"
	"github.com/chiefgyk3d/typo-sniper/intel"
	"github.com/chiefgyk3d/typo-sniper/ml"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/resolve"
	"github.com/chiefgyk3d/typo-sniper/semaphore"
)

// Enricher names used in degradation reporting.
const (
	EnricherWhois   = "whois"
	EnricherURLScan = "urlscan"
	EnricherCT      = "certificate_transparency"
	EnricherHTTP    = "http_probe"
)

// DNSLookup is the registration decision dependency.
type DNSLookup interface {
	Lookup(ctx context.Context, domain string) (*report.DNSRecords, error)
}

// WhoisLookup fetches registration metadata.
type WhoisLookup interface {
	Lookup(ctx context.Context, domain string) (*report.WhoisInfo, error)
}

// URLScanLookup fetches URLScan verdicts.
type URLScanLookup interface {
	Enabled() bool
	Lookup(ctx context.Context, domain string) (*report.URLScanResult, error)
}

// CTLookup fetches certificate transparency history.
type CTLookup interface {
	Enabled() bool
	Lookup(ctx context.Context, domain string) (*report.CTResult, error)
}

// HTTPProber checks candidate liveness.
type HTTPProber interface {
	Enabled() bool
	Probe(ctx context.Context, domain string) *report.HTTPProbeResult
}

// Scanner runs the full pipeline for a list of seeds.
type Scanner struct {
	cfg       *config.Config
	gen       *fuzz.Generator
	dns       DNSLookup
	whois     WhoisLookup
	urlscan   URLScanLookup
	ct        CTLookup
	probe     HTTPProber
	hook      *ml.Hook
	dnsSem    semaphore.Semaphore
	perRecord time.Duration
}

// NewScanner wires the pipeline dependencies together. The urlscan, ct,
// probe and hook arguments may be nil when the matching feature is disabled.
func NewScanner(cfg *config.Config, gen *fuzz.Generator, dns DNSLookup, whois WhoisLookup,
	urlscan URLScanLookup, ct CTLookup, probe HTTPProber, hook *ml.Hook) *Scanner {
	return &Scanner{
		cfg:       cfg,
		gen:       gen,
		dns:       dns,
		whois:     whois,
		urlscan:   urlscan,
		ct:        ct,
		probe:     probe,
		hook:      hook,
		dnsSem:    semaphore.NewSimpleSemaphore(cfg.MaxWorkers),
		perRecord: recordDeadline(cfg),
	}
}

// recordDeadline derives the per-candidate enrichment budget from the
// slowest configured enricher.
func recordDeadline(cfg *config.Config) time.Duration {
	longest := time.Duration(cfg.WhoisTimeout) * time.Second

	if d := time.Duration(cfg.URLScanWaitTimeout) * time.Second; cfg.URLScanEnabled() && d > longest {
		longest = d
	}
	if d := 15 * time.Second; cfg.EnableCertTransparency && d > longest {
		longest = d
	}
	if d := time.Duration(cfg.HTTPTimeout) * time.Second; cfg.EnableHTTPProbe && d > longest {
		longest = d
	}
	return longest + longest/2
}

// Scan processes the seeds and returns one result per seed in input order.
// Seeds run concurrently; the global deadline from the configuration bounds
// the whole scan.
func (s *Scanner) Scan(ctx context.Context, seeds []string) []*report.SeedResult {
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ScanTimeout)*time.Second)
		defer cancel()
	}

	results := make([]*report.SeedResult, len(seeds))
	var wg sync.WaitGroup
	for i, seed := range seeds {
		wg.Add(1)
		go func(idx int, seed string) {
			defer wg.Done()
			results[idx] = s.scanSeed(ctx, seed)
		}(i, seed)
	}
	wg.Wait()

	return results
}

// admitted is a candidate that passed the DNS registration check.
type admitted struct {
	candidate fuzz.Candidate
	dns       *report.DNSRecords
}

// seedState accumulates the per-seed outcome across worker goroutines.
type seedState struct {
	sync.Mutex
	records   []*report.PermutationRecord
	degraded  map[string]struct{}
	transient int32
}

func (st *seedState) addRecord(rec *report.PermutationRecord) {
	st.Lock()
	defer st.Unlock()
	st.records = append(st.records, rec)
}

func (st *seedState) markDegraded(enricher string) {
	st.Lock()
	defer st.Unlock()
	st.degraded[enricher] = struct{}{}
}

func (s *Scanner) scanSeed(ctx context.Context, seed string) *report.SeedResult {
	log := s.cfg.Log.With("seed", seed)
	state := &seedState{degraded: make(map[string]struct{})}
	pending := queue.NewQueue()

	// Phase A streams candidates into the DNS worker pool; registered ones
	// land on the pending queue for enrichment
	var total int
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)

		var dnsWG sync.WaitGroup
		var submitted int
		for c := range s.gen.Generate(ctx, seed) {
			total++
			if !s.dnsSem.AcquireCtx(ctx) {
				break
			}

			dnsWG.Add(1)
			go func(c fuzz.Candidate) {
				defer dnsWG.Done()
				defer s.dnsSem.Release()

				records, err := s.dns.Lookup(ctx, c.Domain)
				if err != nil {
					if !errors.Is(err, resolve.ErrUnregistered) && ctx.Err() == nil {
						log.Warn("Treating the domain as unregistered", "domain", c.Domain, "err", err)
						atomic.AddInt32(&state.transient, 1)
					}
					return
				}
				pending.Append(&admitted{candidate: c, dns: records})
			}(c)

			// Pace the resolvers between batches of submissions
			if submitted++; submitted%s.cfg.MaxWorkers == 0 && s.cfg.RateLimitDelay > 0 {
				select {
				case <-time.After(time.Duration(s.cfg.RateLimitDelay * float64(time.Second))):
				case <-ctx.Done():
				}
			}
		}
		dnsWG.Wait()
	}()

	// Phase B drains the queue as admissions arrive
	var enrichWG sync.WaitGroup
	enrich := func(element interface{}) {
		a := element.(*admitted)
		enrichWG.Add(1)
		go func() {
			defer enrichWG.Done()
			s.enrich(ctx, seed, a, state)
		}()
	}

	producing := true
	for producing {
		select {
		case <-pending.Signal():
			pending.Process(enrich)
		case <-producerDone:
			producing = false
		case <-ctx.Done():
			producing = false
		}
	}
	// The producer owns the permutation counter; wait for it to finish on
	// the cancellation path as well before reading the totals
	<-producerDone
	if ctx.Err() == nil {
		pending.Process(enrich)
	}
	enrichWG.Wait()

	result := &report.SeedResult{
		Seed:              seed,
		TotalPermutations: total,
		RegisteredCount:   len(state.records),
		TransientFailures: int(atomic.LoadInt32(&state.transient)),
	}
	for name := range state.degraded {
		result.Degraded = append(result.Degraded, name)
	}
	sort.Strings(result.Degraded)

	records := s.filterRecent(state.records)
	if s.hook != nil {
		s.hook.ScoreBatch(records)
	}
	report.SortRecords(records)
	result.Records = records

	return result
}

// enrich runs Phase B for one admitted candidate and appends the assembled
// record. Nothing is appended when the scan deadline arrives first.
func (s *Scanner) enrich(parent context.Context, seed string, a *admitted, state *seedState) {
	ctx, cancel := context.WithTimeout(parent, s.perRecord)
	defer cancel()

	rec := &report.PermutationRecord{
		Seed:       seed,
		Domain:     a.candidate.Domain,
		Fuzzer:     a.candidate.Fuzzer,
		Registered: true,
		DNS:        *a.dns,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		info, err := s.whois.Lookup(ctx, rec.Domain)
		if err != nil {
			if ctx.Err() == nil {
				s.cfg.Log.Warn("WHOIS is unavailable for the domain", "domain", rec.Domain, "err", err)
				state.markDegraded(EnricherWhois)
			}
			return
		}
		rec.Whois = *info
	}()

	if s.urlscan != nil && s.urlscan.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.urlscan.Lookup(ctx, rec.Domain)
			if err != nil {
				if ctx.Err() == nil {
					s.cfg.Log.Warn("URLScan failed for the domain", "domain", rec.Domain, "err", err)
					state.markDegraded(EnricherURLScan)
				}
				return
			}
			rec.ThreatIntel.URLScan = result
		}()
	}

	if s.ct != nil && s.ct.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.ct.Lookup(ctx, rec.Domain)
			if err != nil {
				if ctx.Err() == nil {
					s.cfg.Log.Warn("Certificate transparency failed for the domain", "domain", rec.Domain, "err", err)
					state.markDegraded(EnricherCT)
				}
				return
			}
			rec.ThreatIntel.CertificateTransparency = result
		}()
	}

	if s.probe != nil && s.probe.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.ThreatIntel.HTTPProbe = s.probe.Probe(ctx, rec.Domain)
		}()
	}

	wg.Wait()

	// A record interrupted by the scan deadline is discarded rather than
	// emitted half populated; a record that merely exhausted its own budget
	// keeps its null fields
	if parent.Err() != nil {
		return
	}

	rec.Recent = s.isRecent(rec.Whois.CreationDate)
	if s.cfg.EnableRiskScoring {
		rec.RiskScore = intel.RiskScore(rec, time.Now())
	}
	state.addRecord(rec)
}

// isRecent marks registrations young enough to warrant attention. The months
// filter window is used when configured; otherwise the last quarter.
func (s *Scanner) isRecent(created *time.Time) bool {
	if created == nil {
		return false
	}

	months := s.cfg.MonthsFilter
	if months <= 0 {
		months = 3
	}
	return created.After(time.Now().AddDate(0, -months, 0))
}

// filterRecent applies the months filter. The filter is idempotent: records
// that survive one application survive any number of them.
func (s *Scanner) filterRecent(records []*report.PermutationRecord) []*report.PermutationRecord {
	if s.cfg.MonthsFilter <= 0 {
		return records
	}

	cutoff := time.Now().AddDate(0, -s.cfg.MonthsFilter, 0)
	var kept []*report.PermutationRecord
	for _, rec := range records {
		if rec.Whois.CreationDate != nil && !rec.Whois.CreationDate.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	return kept
}
