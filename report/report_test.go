// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func sampleScan() (*ScanMeta, []*SeedResult) {
	created := time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)
	code := 200

	meta := &ScanMeta{
		ID:        uuid.New(),
		Version:   "v1.0.0",
		StartTime: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, time.June, 1, 12, 5, 0, 0, time.UTC),
		Seeds:     []string{"example.com"},
		Features:  []string{"combo"},
	}
	results := []*SeedResult{{
		Seed:              "example.com",
		TotalPermutations: 120,
		RegisteredCount:   2,
		Records: []*PermutationRecord{
			{
				Seed: "example.com", Domain: "examp1e.com", Fuzzer: "homoglyph",
				Registered: true, RiskScore: 65, Recent: true,
				DNS:   DNSRecords{A: []string{"192.0.2.1", "192.0.2.2"}},
				Whois: WhoisInfo{Registrar: "Test Registrar", CreationDate: &created, RawOK: true},
				ThreatIntel: ThreatIntel{
					URLScan:                 &URLScanResult{Verdict: VerdictMalicious, Score: 90, Source: SourceExisting},
					CertificateTransparency: &CTResult{Count: 2},
					HTTPProbe:               &HTTPProbeResult{StatusCode: &code, Active: true},
				},
				ML: &MLResult{Risk: 88, Confidence: 0.88, Verdict: MLVerdictTyposquat},
			},
			{
				Seed: "example.com", Domain: "examplee.com", Fuzzer: "addition",
				Registered: true, RiskScore: 5,
			},
		},
	}}
	return meta, results
}

func TestSortRecords(t *testing.T) {
	records := []*PermutationRecord{
		{Domain: "bbb.com", RiskScore: 10},
		{Domain: "aaa.com", RiskScore: 10},
		{Domain: "zzz.com", RiskScore: 90},
		{Domain: "ccc.com", RiskScore: 0},
	}

	SortRecords(records)

	want := []string{"zzz.com", "aaa.com", "bbb.com", "ccc.com"}
	for i, rec := range records {
		if rec.Domain != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, rec.Domain, want[i])
		}
	}
}

func TestSeedResultFailed(t *testing.T) {
	r := &SeedResult{TransientFailures: 3}
	if !r.Failed() {
		t.Error("Failed() = false with zero records and transient failures")
	}

	r.Records = []*PermutationRecord{{Domain: "example.com"}}
	if r.Failed() {
		t.Error("Failed() = true although records were emitted")
	}
}

func TestWriteJSON(t *testing.T) {
	meta, results := sampleScan()

	var buf bytes.Buffer
	if err := WriteJSON(&buf, meta, results); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var out struct {
		Scan struct {
			Version string `json:"version"`
		} `json:"scan"`
		Results []struct {
			Seed         string `json:"seed"`
			Permutations []struct {
				Domain string          `json:"domain"`
				IsRec  bool            `json:"is_recent"`
				ML     json.RawMessage `json:"ml"`
			} `json:"permutations"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out.Scan.Version != "v1.0.0" {
		t.Errorf("scan.version = %q", out.Scan.Version)
	}
	if len(out.Results) != 1 || len(out.Results[0].Permutations) != 2 {
		t.Fatalf("unexpected result shape: %+v", out.Results)
	}
	if out.Results[0].Permutations[0].Domain != "examp1e.com" {
		t.Errorf("first record = %s, want the ordering preserved", out.Results[0].Permutations[0].Domain)
	}
	// An unscored record serializes ml as null
	if string(out.Results[0].Permutations[1].ML) != "null" {
		t.Errorf("ml = %s, want null", out.Results[0].Permutations[1].ML)
	}
}

func TestWriteCSV(t *testing.T) {
	meta, results := sampleScan()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, meta, results); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("CSV has %d rows, want a header and 2 records", len(rows))
	}

	wantHeader := []string{
		"seed", "domain", "fuzzer", "risk_score",
		"urlscan_verdict", "ct_count", "http_status_code",
		"whois_creation_date", "whois_registrar", "dns_a",
		"ml_risk", "ml_verdict",
	}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}

	first := rows[1]
	if first[1] != "examp1e.com" || first[3] != "65" || first[4] != VerdictMalicious {
		t.Errorf("first row = %v", first)
	}
	if first[7] != "2025-05-02" {
		t.Errorf("creation date = %q, want 2025-05-02", first[7])
	}
	if first[9] != "192.0.2.1 192.0.2.2" {
		t.Errorf("dns_a = %q, want the addresses joined", first[9])
	}

	// Null enrichments flatten to empty cells
	second := rows[2]
	if second[4] != "" || second[5] != "" || second[10] != "" {
		t.Errorf("second row has values for null enrichments: %v", second)
	}
}

func TestWriteHTML(t *testing.T) {
	meta, results := sampleScan()

	var buf bytes.Buffer
	if err := WriteHTML(&buf, meta, results); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{"examp1e.com", "Test Registrar", `class="recent"`, "risk-high"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML output is missing %q", want)
		}
	}
}

func TestWriteExcel(t *testing.T) {
	meta, results := sampleScan()
	path := filepath.Join(t.TempDir(), "report.xlsx")

	if err := WriteExcel(path, meta, results); err != nil {
		t.Fatalf("WriteExcel() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("the workbook cannot be reopened: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{sheetSummary, sheetDetails, sheetStats} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Errorf("sheet %s is missing", sheet)
		}
	}

	domain, err := f.GetCellValue(sheetDetails, "B2")
	if err != nil || domain != "examp1e.com" {
		t.Errorf("Details!B2 = %q (%v), want examp1e.com", domain, err)
	}
}

func TestExport(t *testing.T) {
	meta, results := sampleScan()
	dir := t.TempDir()

	paths, err := Export(dir, []string{FormatJSON, FormatCSV}, meta, results)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Export() wrote %d files, want 2", len(paths))
	}
	if !strings.HasSuffix(paths[0], ".json") || !strings.HasSuffix(paths[1], ".csv") {
		t.Errorf("unexpected file names: %v", paths)
	}

	if _, err := Export(dir, []string{"pdf"}, meta, results); err == nil {
		t.Error("Export() accepted an unsupported format")
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range Formats {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("pdf") {
		t.Error("ValidFormat(pdf) = true")
	}
}
