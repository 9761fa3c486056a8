// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzz

import (
	"context"
	"strings"
	"testing"
)

func newTestGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()

	g, err := NewGenerator(opts)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestGenerateDedupAndOriginal(t *testing.T) {
	g := newTestGenerator(t, Options{ComboSquatting: true, SoundAlike: true, IDNHomograph: true})

	candidates := g.All("example.com")
	if len(candidates) == 0 {
		t.Fatal("All() returned no candidates")
	}
	if candidates[0].Domain != "example.com" || candidates[0].Fuzzer != FuzzerOriginal {
		t.Errorf("first candidate = %+v, want the seed tagged %s", candidates[0], FuzzerOriginal)
	}

	seen := make(map[string]string)
	for _, c := range candidates {
		if prev, found := seen[c.Domain]; found {
			t.Errorf("domain %s emitted twice: %s and %s", c.Domain, prev, c.Fuzzer)
		}
		seen[c.Domain] = c.Fuzzer
	}
}

func TestDedupPrefersFirstFuzzer(t *testing.T) {
	g := newTestGenerator(t, Options{ComboSquatting: true})

	// Both addition and combo produce the digit-suffix variants; addition
	// sorts first and must win
	for _, c := range g.All("example.com") {
		if c.Domain == "example0.com" && c.Fuzzer != FuzzerAddition {
			t.Errorf("example0.com tagged %s, want %s", c.Fuzzer, FuzzerAddition)
		}
	}
}

func TestComboSquatting(t *testing.T) {
	g := newTestGenerator(t, Options{ComboSquatting: true})

	domains := make(map[string]string)
	for _, c := range g.All("example.com") {
		domains[c.Domain] = c.Fuzzer
	}

	for _, want := range []string{"login-example.com", "example-login.com", "loginexample.com"} {
		if f, found := domains[want]; !found {
			t.Errorf("combo variant %s was not generated", want)
		} else if f != FuzzerCombo {
			t.Errorf("combo variant %s tagged %s", want, f)
		}
	}
}

func TestComboDisabledByDefault(t *testing.T) {
	g := newTestGenerator(t, Options{})

	for _, c := range g.All("example.com") {
		if c.Fuzzer == FuzzerCombo || c.Fuzzer == FuzzerSoundAlike || c.Fuzzer == FuzzerIDNHomograph {
			t.Errorf("optional fuzzer %s ran without being enabled", c.Fuzzer)
		}
	}
}

func TestClassicVariants(t *testing.T) {
	g := newTestGenerator(t, Options{})

	domains := make(map[string]string)
	for _, c := range g.All("abc.com") {
		domains[c.Domain] = c.Fuzzer
	}

	cases := []struct {
		domain string
		fuzzer string
	}{
		{"bc.com", FuzzerOmission},
		{"aabc.com", FuzzerRepetition},
		{"bac.com", FuzzerTransposition},
		{"a-bc.com", FuzzerHyphenation},
		{"a.bc.com", FuzzerSubdomain},
		{"abc.net", FuzzerTLDSwap},
	}
	for _, c := range cases {
		if f, found := domains[c.domain]; !found {
			t.Errorf("%s variant %s was not generated", c.fuzzer, c.domain)
		} else if f != c.fuzzer {
			t.Errorf("%s tagged %s, want %s", c.domain, f, c.fuzzer)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"example.com.", "example.com"},
		{"аpple.com", "xn--pple-43d.com"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Errorf("Normalize(%q) error = %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIDNHomographVariants(t *testing.T) {
	g := newTestGenerator(t, Options{IDNHomograph: true})

	var count int
	for _, c := range g.All("apple.com") {
		if c.Fuzzer != FuzzerIDNHomograph {
			continue
		}
		count++
		label, _, _ := strings.Cut(c.Domain, ".")
		if !strings.HasPrefix(label, "xn--") {
			t.Errorf("homograph variant %s is not in punycode form", c.Domain)
		}
	}
	if count == 0 {
		t.Error("no IDN homograph variants were generated")
	}
	if count > maxHomographResults {
		t.Errorf("homograph variants = %d, want at most %d", count, maxHomographResults)
	}
}

func TestLabelLegality(t *testing.T) {
	g := newTestGenerator(t, Options{ComboSquatting: true, SoundAlike: true, IDNHomograph: true})

	for _, c := range g.All("example.com") {
		if !Valid(c.Domain) {
			t.Errorf("illegal candidate emitted: %s (%s)", c.Domain, c.Fuzzer)
		}
		label, _, _ := strings.Cut(c.Domain, ".")
		if len(label) > maxLabelLen {
			t.Errorf("label exceeds %d characters: %s", maxLabelLen, c.Domain)
		}
	}
}

func TestGenerateCancellation(t *testing.T) {
	g := newTestGenerator(t, Options{ComboSquatting: true})

	ctx, cancel := context.WithCancel(context.Background())
	ch := g.Generate(ctx, "example.com")

	if _, ok := <-ch; !ok {
		t.Fatal("the stream closed before producing any candidate")
	}
	cancel()

	var count int
	for range ch {
		count++
	}
	// One candidate may already be blocked on the send when cancel lands
	if count > 1 {
		t.Errorf("stream produced %d candidates after cancellation", count)
	}
}

func TestGenerateInvalidSeed(t *testing.T) {
	g := newTestGenerator(t, Options{})

	if got := g.All("not a domain"); len(got) != 0 {
		t.Errorf("All() on an invalid seed produced %d candidates", len(got))
	}
}

func TestSoundex(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"robert", "R163"},
		{"rupert", "R163"},
		{"example", "E251"},
	}
	for _, c := range cases {
		if got := soundex(c.in); got != c.want {
			t.Errorf("soundex(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSoundAlikeEquivalence(t *testing.T) {
	g := newTestGenerator(t, Options{SoundAlike: true})

	sx := soundex("example")
	mp := metaphone("example")
	for _, c := range g.All("example.com") {
		if c.Fuzzer != FuzzerSoundAlike {
			continue
		}
		label, _, _ := strings.Cut(c.Domain, ".")
		if soundex(label) != sx && metaphone(label) != mp {
			t.Errorf("soundalike variant %s is not phonetically equivalent", c.Domain)
		}
	}
}
