// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package intel

import (
	"time"

	"github.com/chiefgyk3d/typo-sniper/fuzz"
	"github.com/chiefgyk3d/typo-sniper/report"
)

// Signal weights for the risk score.
const (
	weightVerdictMalicious  = 25
	weightVerdictSuspicious = 15
	weightCreated90Days     = 15
	weightCreated30Days     = 10
	weightHTTPActive        = 10
	weightCTPresence        = 5
	weightDeceptiveFuzzer   = 10
	weightBaitFuzzer        = 5
	weightPrivacyProxy      = 5
)

// RiskScore computes the score for an assembled record. The function is pure
// given the record and the reference time, so identical records always score
// identically within a scan.
func RiskScore(r *report.PermutationRecord, now time.Time) int {
	var score int

	if u := r.ThreatIntel.URLScan; u != nil {
		switch u.Verdict {
		case report.VerdictMalicious:
			score += weightVerdictMalicious
		case report.VerdictSuspicious:
			score += weightVerdictSuspicious
		}
	}

	if created := r.Whois.CreationDate; created != nil {
		age := now.Sub(*created)
		if age >= 0 && age <= 90*24*time.Hour {
			score += weightCreated90Days
		}
		if age >= 0 && age <= 30*24*time.Hour {
			score += weightCreated30Days
		}
	}

	if p := r.ThreatIntel.HTTPProbe; p != nil && p.Active {
		score += weightHTTPActive
	}
	if ct := r.ThreatIntel.CertificateTransparency; ct != nil && ct.Count >= 1 {
		score += weightCTPresence
	}

	switch r.Fuzzer {
	case fuzz.FuzzerHomoglyph, fuzz.FuzzerIDNHomograph:
		score += weightDeceptiveFuzzer
	case fuzz.FuzzerCombo, fuzz.FuzzerSubdomain:
		score += weightBaitFuzzer
	}

	if r.Whois.PrivacyProxy {
		score += weightPrivacyProxy
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
