// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzz

import "golang.org/x/net/idna"

const (
	maxHomographSubs    = 3
	maxHomographResults = 50
)

// idnHomograph substitutes confusable Unicode codepoints for up to three
// ASCII characters of the label and emits the punycode form of each variant.
// The result set is capped since the substitution space grows combinatorially.
func (g *Generator) idnHomograph(label, suffix string) []string {
	runes := []rune(label)

	var positions []int
	for i, r := range runes {
		if len(g.confusables[r]) > 0 {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return nil
	}

	var results []string
	seen := stringsetOf()

	var substitute func(start, depth int, current []rune)
	substitute = func(start, depth int, current []rune) {
		if len(results) >= maxHomographResults {
			return
		}
		if depth > 0 {
			ascii, err := idna.ToASCII(string(current))
			if err == nil && validLabel(ascii) {
				if d := domainOf(ascii, suffix); !contains(seen, d) {
					seen[d] = struct{}{}
					results = append(results, d)
				}
			}
		}
		if depth == maxHomographSubs {
			return
		}
		for pi := start; pi < len(positions); pi++ {
			pos := positions[pi]
			orig := current[pos]
			for _, sub := range g.confusables[orig] {
				current[pos] = sub
				substitute(pi+1, depth+1, current)
				if len(results) >= maxHomographResults {
					current[pos] = orig
					return
				}
			}
			current[pos] = orig
		}
	}

	substitute(0, 0, append([]rune(nil), runes...))
	return results
}

func contains(set map[string]struct{}, s string) bool {
	_, found := set[s]
	return found
}
