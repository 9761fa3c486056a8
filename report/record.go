// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package report defines the record schema shared by the scanner and the
// exporters, plus the writers for the supported output formats.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// URLScan verdict values.
const (
	VerdictMalicious  = "malicious"
	VerdictSuspicious = "suspicious"
	VerdictClean      = "clean"
	VerdictUnknown    = "unknown"
)

// URLScan result source values.
const (
	SourceExisting  = "existing"
	SourceSubmitted = "submitted"
)

// ML verdict values.
const (
	MLVerdictTyposquat  = "typosquat"
	MLVerdictLegitimate = "legitimate"
)

// DNSRecords holds the resource records discovered for a candidate domain.
type DNSRecords struct {
	A    []string `json:"a,omitempty"`
	AAAA []string `json:"aaaa,omitempty"`
	MX   []string `json:"mx,omitempty"`
	NS   []string `json:"ns,omitempty"`
}

// HasRecords returns true when at least one record of interest was returned.
func (d *DNSRecords) HasRecords() bool {
	return len(d.A) > 0 || len(d.AAAA) > 0 || len(d.MX) > 0 || len(d.NS) > 0
}

// WhoisInfo is the normalized registration metadata for a candidate domain.
type WhoisInfo struct {
	Registrar      string     `json:"registrar,omitempty"`
	CreationDate   *time.Time `json:"creation_date"`
	UpdatedDate    *time.Time `json:"updated_date"`
	ExpirationDate *time.Time `json:"expiration_date"`
	NameServers    []string   `json:"name_servers,omitempty"`
	Status         []string   `json:"status,omitempty"`
	Emails         []string   `json:"emails,omitempty"`
	Registrant     string     `json:"registrant,omitempty"`
	Organization   string     `json:"organization,omitempty"`
	Country        string     `json:"country,omitempty"`
	PrivacyProxy   bool       `json:"privacy_proxy,omitempty"`
	RawOK          bool       `json:"raw_ok"`
}

// URLScanResult is the outcome of a URLScan lookup or submission.
type URLScanResult struct {
	Verdict       string `json:"verdict"`
	Score         int    `json:"score"`
	ReportURL     string `json:"report_url,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	ScanAgeDays   int    `json:"scan_age_days"`
	Source        string `json:"source"`
}

// CTResult summarizes the certificate transparency log entries for a domain.
type CTResult struct {
	Count     int        `json:"count"`
	Issuers   []string   `json:"issuers,omitempty"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// HTTPProbeResult is the outcome of probing the candidate over HTTP(S).
type HTTPProbeResult struct {
	StatusCode  *int   `json:"status_code"`
	Active      bool   `json:"active"`
	FinalURL    string `json:"final_url,omitempty"`
	ChainLength int    `json:"chain_length"`
}

// ThreatIntel groups the optional enrichment results. A nil field means the
// enricher was disabled, skipped, or failed after retries.
type ThreatIntel struct {
	URLScan                 *URLScanResult   `json:"urlscan"`
	CertificateTransparency *CTResult        `json:"certificate_transparency"`
	HTTPProbe               *HTTPProbeResult `json:"http_probe"`
}

// MLResult is the outcome of the optional post-enrichment classifier.
type MLResult struct {
	Risk        int     `json:"risk"`
	Confidence  float64 `json:"confidence"`
	Verdict     string  `json:"verdict"`
	NeedsReview bool    `json:"needs_review"`
	Explanation string  `json:"explanation,omitempty"`
}

// PermutationRecord is the unit emitted to the exporters. Records are
// immutable once the scanner has finished assembling them.
type PermutationRecord struct {
	Seed        string      `json:"seed"`
	Domain      string      `json:"domain"`
	Fuzzer      string      `json:"fuzzer"`
	Registered  bool        `json:"registered"`
	DNS         DNSRecords  `json:"dns"`
	Whois       WhoisInfo   `json:"whois"`
	ThreatIntel ThreatIntel `json:"threat_intel"`
	RiskScore   int         `json:"risk_score"`
	Recent      bool        `json:"is_recent,omitempty"`
	ML          *MLResult   `json:"ml"`
}

// SeedResult holds the records produced for a single monitored domain.
type SeedResult struct {
	Seed              string               `json:"seed"`
	TotalPermutations int                  `json:"total_permutations"`
	RegisteredCount   int                  `json:"registered_count"`
	Records           []*PermutationRecord `json:"permutations"`
	Degraded          []string             `json:"degraded_enrichers,omitempty"`
	TransientFailures int                  `json:"-"`
}

// Failed reports whether the seed produced zero records due to repeated
// transient errors, which drives the partial-results exit code.
func (r *SeedResult) Failed() bool {
	return len(r.Records) == 0 && r.TransientFailures > 0
}

// ScanMeta describes a completed scan for the exporters.
type ScanMeta struct {
	ID        uuid.UUID `json:"scan_id"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Seeds     []string  `json:"seeds"`
	Features  []string  `json:"enabled_features,omitempty"`
}

// SortRecords orders the records within one seed: descending risk score,
// then ascending domain name.
func SortRecords(records []*PermutationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].RiskScore != records[j].RiskScore {
			return records[i].RiskScore > records[j].RiskScore
		}
		return records[i].Domain < records[j].Domain
	})
}
