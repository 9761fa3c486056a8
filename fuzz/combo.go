// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzz

var comboSeparators = []string{"", "-", "_"}

// combo pairs the label with phishing-bait keywords on both sides, across the
// common separators, plus single digit suffixes.
func (g *Generator) combo(label, suffix string) []string {
	var results []string

	add := func(l string) {
		if validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}

	for _, kw := range g.keywords {
		if kw == label {
			continue
		}
		for _, sep := range comboSeparators {
			add(label + sep + kw)
			add(kw + sep + label)
		}
	}
	for d := '0'; d <= '9'; d++ {
		add(label + string(d))
	}
	return results
}
