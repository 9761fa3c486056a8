// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package format handles the banner and summary output shared by the
// command-line tooling.
package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/fatih/color"
)

// Banner is the ASCII art logo used within help output.
const Banner = ` _____                     ____        _
|_   _|   _ _ __   ___    / ___| _ __ (_)_ __   ___ _ __
  | || | | | '_ \ / _ \   \___ \| '_ \| | '_ \ / _ \ '__|
  | || |_| | |_) | (_) |   ___) | | | | | |_) |  __/ |
  |_| \__, | .__/ \___/   |____/|_| |_|_| .__/ \___|_|
      |___/|_|                          |_|`

const (
	// Version is used to display the current version of Typo Sniper.
	Version = "v1.0.0"

	// Author is used to display the project maintainer.
	Author = "chiefgyk3d - https://github.com/chiefgyk3d"

	// Description is the slogan shown under the banner.
	Description = "Typosquat Discovery and Registration Monitoring"
)

var (
	// Colors used to ease the reading of program output
	b      = color.New(color.FgHiBlue)
	y      = color.New(color.FgHiYellow)
	r      = color.New(color.FgHiRed)
	yellow = color.New(color.FgHiYellow).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	blue   = color.New(color.FgHiBlue).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
)

// PrintBanner outputs the Typo Sniper banner to stderr.
func PrintBanner() {
	FprintBanner(color.Error)
}

// FprintBanner outputs the Typo Sniper banner the same for all tools.
func FprintBanner(out io.Writer) {
	rightmost := 58

	pad := func(num int) {
		for i := 0; i < num; i++ {
			fmt.Fprint(out, " ")
		}
	}

	_, _ = r.Fprintf(out, "\n%s\n\n", Banner)
	pad(rightmost - len(Version))
	_, _ = y.Fprintln(out, Version)
	pad(rightmost - len(Author))
	_, _ = y.Fprintln(out, Author)
	pad(rightmost - len(Description))
	_, _ = y.Fprintf(out, "%s\n\n\n", Description)
}

// PrintScanSummary outputs the per-seed results summary to stderr.
func PrintScanSummary(results []*report.SeedResult) {
	FprintScanSummary(color.Error, results)
}

// FprintScanSummary outputs the results summary utilized by the command-line
// tool.
func FprintScanSummary(out io.Writer, results []*report.SeedResult) {
	pad := func(num int, chr string) {
		for i := 0; i < num; i++ {
			b.Fprint(out, chr)
		}
	}

	var emitted, registered, permutations int
	for _, r := range results {
		emitted += len(r.Records)
		registered += r.RegisteredCount
		permutations += r.TotalPermutations
	}

	fmt.Fprintln(out)
	title := "Typo Sniper "
	site := "https://github.com/chiefgyk3d/typo-sniper"
	b.Fprint(out, title+Version)
	num := 80 - (len(title) + len(Version) + len(site))
	pad(num, " ")
	b.Fprintf(out, "%s\n", site)
	pad(8, "----------")
	fmt.Fprintf(out, "\n%s%s%s%s%s%s\n",
		yellow(strconv.Itoa(permutations)), green(" permutations checked, "),
		yellow(strconv.Itoa(registered)), green(" registered, "),
		yellow(strconv.Itoa(emitted)), green(" records emitted"))
	pad(8, "----------")
	fmt.Fprintln(out)

	for _, r := range results {
		line := fmt.Sprintf("%s%s %s %s",
			blue("Seed: "), yellow(r.Seed), green("-"),
			green(strconv.Itoa(len(r.Records))+" records"))
		if len(r.Degraded) > 0 {
			line += fmt.Sprintf(" %s", red("degraded: "+strings.Join(r.Degraded, ", ")))
		}
		if r.Failed() {
			line += fmt.Sprintf(" %s", red("FAILED"))
		}
		fmt.Fprintln(out, line)

		for _, rec := range highRiskOf(r.Records) {
			fmt.Fprintf(out, "\t%s %s\n",
				yellow(fmt.Sprintf("%-30s", rec.Domain)),
				red("risk "+strconv.Itoa(rec.RiskScore)))
		}
	}
}

// highRiskOf returns the records worth surfacing on the terminal.
func highRiskOf(records []*report.PermutationRecord) []*report.PermutationRecord {
	var high []*report.PermutationRecord

	for _, rec := range records {
		if rec.RiskScore >= 50 {
			high = append(high, rec)
		}
	}
	return high
}
