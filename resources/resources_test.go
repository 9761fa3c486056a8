// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package resources

import "testing"

func TestGetTLDs(t *testing.T) {
	tlds, err := GetTLDs()
	if err != nil {
		t.Fatalf("GetTLDs() error = %v, wantErr <nil>", err)
	}
	if len(tlds) < 400 {
		t.Errorf("GetTLDs() returned %d entries, expected the popularity list", len(tlds))
	}
	if tlds[0] != "com" {
		t.Errorf("GetTLDs() first entry = %s, want com", tlds[0])
	}

	seen := make(map[string]struct{})
	for _, tld := range tlds {
		if _, found := seen[tld]; found {
			t.Errorf("GetTLDs() returned a duplicate entry: %s", tld)
		}
		seen[tld] = struct{}{}
	}
}

func TestGetComboKeywords(t *testing.T) {
	words, err := GetComboKeywords()
	if err != nil {
		t.Fatalf("GetComboKeywords() error = %v, wantErr <nil>", err)
	}
	if len(words) < 50 {
		t.Errorf("GetComboKeywords() returned %d entries, expected at least 50", len(words))
	}
}

func TestGetConfusables(t *testing.T) {
	table, err := GetConfusables()
	if err != nil {
		t.Fatalf("GetConfusables() error = %v, wantErr <nil>", err)
	}

	subs, found := table['a']
	if !found || len(subs) == 0 {
		t.Fatal("GetConfusables() missing substitutions for 'a'")
	}
	for _, r := range subs {
		if r < 128 {
			t.Errorf("GetConfusables() returned an ASCII substitution: %q", r)
		}
	}
}
