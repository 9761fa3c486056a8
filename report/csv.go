// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// csvColumns is the flat projection shared by the CSV and HTML writers.
var csvColumns = []string{
	"seed", "domain", "fuzzer", "risk_score",
	"urlscan_verdict", "ct_count", "http_status_code",
	"whois_creation_date", "whois_registrar", "dns_a",
	"ml_risk", "ml_verdict",
}

// WriteCSV emits one row per record across all seeds, preserving the scan
// output order.
func WriteCSV(w io.Writer, meta *ScanMeta, results []*SeedResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, seed := range results {
		for _, rec := range seed.Records {
			if err := cw.Write(csvRow(rec)); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(rec *PermutationRecord) []string {
	var urlscanVerdict, ctCount, httpStatus, mlRisk, mlVerdict string

	if u := rec.ThreatIntel.URLScan; u != nil {
		urlscanVerdict = u.Verdict
	}
	if ct := rec.ThreatIntel.CertificateTransparency; ct != nil {
		ctCount = strconv.Itoa(ct.Count)
	}
	if p := rec.ThreatIntel.HTTPProbe; p != nil && p.StatusCode != nil {
		httpStatus = strconv.Itoa(*p.StatusCode)
	}
	if rec.ML != nil {
		mlRisk = strconv.Itoa(rec.ML.Risk)
		mlVerdict = rec.ML.Verdict
	}

	return []string{
		rec.Seed,
		rec.Domain,
		rec.Fuzzer,
		strconv.Itoa(rec.RiskScore),
		urlscanVerdict,
		ctCount,
		httpStatus,
		formatTime(rec.Whois.CreationDate),
		rec.Whois.Registrar,
		strings.Join(rec.DNS.A, " "),
		mlRisk,
		mlVerdict,
	}
}
