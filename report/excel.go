// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetDetails = "Details"
	sheetStats   = "Statistics"
)

// WriteExcel emits a workbook with summary, per-record detail and fuzzer
// statistics sheets.
func WriteExcel(path string, meta *ScanMeta, results []*SeedResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetDetails); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetStats); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return err
	}
	highRisk, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "8B0000"},
	})
	if err != nil {
		return err
	}

	if err := writeSummarySheet(f, header, meta, results); err != nil {
		return err
	}
	if err := writeDetailsSheet(f, header, highRisk, results); err != nil {
		return err
	}
	if err := writeStatsSheet(f, header, results); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func writeSummarySheet(f *excelize.File, header int, meta *ScanMeta, results []*SeedResult) error {
	rows := [][]interface{}{
		{"Scan ID", meta.ID.String()},
		{"Version", meta.Version},
		{"Started", meta.StartTime.Format("2006-01-02 15:04:05 MST")},
		{"Finished", meta.EndTime.Format("2006-01-02 15:04:05 MST")},
		{"Seeds", strings.Join(meta.Seeds, ", ")},
		{"Enabled features", strings.Join(meta.Features, ", ")},
		{},
		{"Seed", "Permutations", "Registered", "Emitted", "Degraded enrichers"},
	}
	for _, r := range results {
		rows = append(rows, []interface{}{
			r.Seed, r.TotalPermutations, r.RegisteredCount,
			len(r.Records), strings.Join(r.Degraded, ", "),
		})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(sheetSummary, "A8", "E8", header); err != nil {
		return err
	}
	return f.SetColWidth(sheetSummary, "A", "A", 24)
}

func writeDetailsSheet(f *excelize.File, header, highRisk int, results []*SeedResult) error {
	titles := []interface{}{
		"Seed", "Domain", "Fuzzer", "Risk Score", "URLScan Verdict",
		"Certificates", "HTTP Status", "Creation Date", "Registrar",
		"A Records", "ML Risk", "ML Verdict", "Recent",
	}
	if err := f.SetSheetRow(sheetDetails, "A1", &titles); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetDetails, "A1", "M1", header); err != nil {
		return err
	}

	rowNum := 2
	for _, seed := range results {
		for _, rec := range seed.Records {
			row := detailRow(rec)
			cell := fmt.Sprintf("A%d", rowNum)
			if err := f.SetSheetRow(sheetDetails, cell, &row); err != nil {
				return err
			}
			if rec.RiskScore >= 50 {
				if err := f.SetCellStyle(sheetDetails,
					fmt.Sprintf("D%d", rowNum), fmt.Sprintf("D%d", rowNum), highRisk); err != nil {
					return err
				}
			}
			rowNum++
		}
	}

	return f.SetColWidth(sheetDetails, "A", "B", 28)
}

func detailRow(rec *PermutationRecord) []interface{} {
	var urlscanVerdict, httpStatus, mlVerdict string
	var ctCount, mlRisk interface{}

	if u := rec.ThreatIntel.URLScan; u != nil {
		urlscanVerdict = u.Verdict
	}
	if ct := rec.ThreatIntel.CertificateTransparency; ct != nil {
		ctCount = ct.Count
	}
	if p := rec.ThreatIntel.HTTPProbe; p != nil && p.StatusCode != nil {
		httpStatus = fmt.Sprintf("%d", *p.StatusCode)
	}
	if rec.ML != nil {
		mlRisk = rec.ML.Risk
		mlVerdict = rec.ML.Verdict
	}

	return []interface{}{
		rec.Seed, rec.Domain, rec.Fuzzer, rec.RiskScore, urlscanVerdict,
		ctCount, httpStatus, formatTime(rec.Whois.CreationDate),
		rec.Whois.Registrar, strings.Join(rec.DNS.A, " "), mlRisk,
		mlVerdict, rec.Recent,
	}
}

func writeStatsSheet(f *excelize.File, header int, results []*SeedResult) error {
	counts := make(map[string]int)
	risky := make(map[string]int)
	var order []string

	for _, seed := range results {
		for _, rec := range seed.Records {
			if _, found := counts[rec.Fuzzer]; !found {
				order = append(order, rec.Fuzzer)
			}
			counts[rec.Fuzzer]++
			if rec.RiskScore >= 50 {
				risky[rec.Fuzzer]++
			}
		}
	}

	titles := []interface{}{"Fuzzer", "Registered Domains", "High Risk (>=50)"}
	if err := f.SetSheetRow(sheetStats, "A1", &titles); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetStats, "A1", "C1", header); err != nil {
		return err
	}

	for i, fuzzer := range order {
		row := []interface{}{fuzzer, counts[fuzzer], risky[fuzzer]}
		if err := f.SetSheetRow(sheetStats, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}
