// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"html/template"
	"io"
	"strings"
)

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"joinA":  func(values []string) string { return strings.Join(values, " ") },
	"fmtDay": formatTime,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Typo Sniper Report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { color: #8b0000; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; font-size: 0.9em; }
th { background: #f2f2f2; }
tr.recent { background: #fff3cd; }
td.risk-high { color: #8b0000; font-weight: bold; }
.meta { color: #666; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Typo Sniper Report</h1>
<p class="meta">
Scan {{.Meta.ID}} &middot; version {{.Meta.Version}} &middot;
started {{.Meta.StartTime.Format "2006-01-02 15:04:05 MST"}} &middot;
seeds: {{range $i, $s := .Meta.Seeds}}{{if $i}}, {{end}}{{$s}}{{end}}
</p>
{{range .Results}}
<h2>{{.Seed}}</h2>
<p class="meta">{{.TotalPermutations}} permutations checked, {{.RegisteredCount}} registered</p>
<table>
<tr>
<th>Domain</th><th>Fuzzer</th><th>Risk</th><th>URLScan</th><th>Certs</th>
<th>HTTP</th><th>Created</th><th>Registrar</th><th>A Records</th><th>ML</th>
</tr>
{{range .Records}}
<tr{{if .Recent}} class="recent"{{end}}>
<td>{{.Domain}}</td>
<td>{{.Fuzzer}}</td>
<td{{if ge .RiskScore 50}} class="risk-high"{{end}}>{{.RiskScore}}</td>
<td>{{with .ThreatIntel.URLScan}}{{.Verdict}}{{end}}</td>
<td>{{with .ThreatIntel.CertificateTransparency}}{{.Count}}{{end}}</td>
<td>{{with .ThreatIntel.HTTPProbe}}{{with .StatusCode}}{{.}}{{end}}{{end}}</td>
<td>{{fmtDay .Whois.CreationDate}}</td>
<td>{{.Whois.Registrar}}</td>
<td>{{joinA .DNS.A}}</td>
<td>{{with .ML}}{{.Verdict}} ({{.Risk}}){{end}}</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))

// WriteHTML emits a standalone report page. Recently registered domains are
// highlighted.
func WriteHTML(w io.Writer, meta *ScanMeta, results []*SeedResult) error {
	data := struct {
		Meta    *ScanMeta
		Results []*SeedResult
	}{
		Meta:    meta,
		Results: results,
	}
	return htmlTmpl.Execute(w, &data)
}
