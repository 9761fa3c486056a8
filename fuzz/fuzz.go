// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package fuzz generates candidate lookalike domains for a monitored seed.
// The generator performs no I/O and is deterministic for a given seed and
// option set.
package fuzz

import (
	"context"
	"regexp"
	"strings"

	"github.com/chiefgyk3d/typo-sniper/resources"
	"golang.org/x/net/idna"
)

// Fuzzer tags carried by the candidates. Exporters treat the set as open.
const (
	FuzzerOriginal      = "original"
	FuzzerAddition      = "addition"
	FuzzerBitsquat      = "bitsquat"
	FuzzerCombo         = "combo"
	FuzzerHomoglyph     = "homoglyph"
	FuzzerHyphenation   = "hyphenation"
	FuzzerIDNHomograph  = "idn-homograph"
	FuzzerOmission      = "omission"
	FuzzerRepetition    = "repetition"
	FuzzerReplacement   = "replacement"
	FuzzerSoundAlike    = "soundalike"
	FuzzerSubdomain     = "subdomain"
	FuzzerTLDSwap       = "tld-swap"
	FuzzerTransposition = "transposition"
	FuzzerVowelSwap     = "vowel-swap"
)

const maxLabelLen = 63

var domainRE = regexp.MustCompile(`^(?:[a-z0-9_](?:[a-z0-9_-]{0,61}[a-z0-9_])?\.)+[a-z]{2,}$`)

// Candidate is a generated lookalike tagged with the fuzzer that produced it.
type Candidate struct {
	Domain string `json:"domain"`
	Fuzzer string `json:"fuzzer"`
}

// Options selects the optional fuzzers. The classic single-edit fuzzers are
// always on.
type Options struct {
	ComboSquatting bool
	SoundAlike     bool
	IDNHomograph   bool
}

// Generator produces the deduplicated union of candidate lookalikes.
type Generator struct {
	opts        Options
	tlds        []string
	keywords    []string
	confusables map[rune][]rune
}

// NewGenerator returns a Generator with the embedded data tables loaded.
func NewGenerator(opts Options) (*Generator, error) {
	tlds, err := resources.GetTLDs()
	if err != nil {
		return nil, err
	}
	keywords, err := resources.GetComboKeywords()
	if err != nil {
		return nil, err
	}
	confusables, err := resources.GetConfusables()
	if err != nil {
		return nil, err
	}

	return &Generator{
		opts:        opts,
		tlds:        tlds,
		keywords:    keywords,
		confusables: confusables,
	}, nil
}

// Normalize lowercases the domain and converts internationalized names to
// their punycode form.
func Normalize(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")

	ascii, err := idna.ToASCII(d)
	if err != nil {
		return "", err
	}
	return ascii, nil
}

// Valid returns true when the name has the shape of a registrable domain.
func Valid(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	return domainRE.MatchString(domain)
}

// Generate streams the candidate set for the seed. The channel is closed when
// generation completes or the context is cancelled, so callers consuming only
// the head of the set never pay for the full union. The seed is always
// present, tagged as original; within the stream every domain is unique, and
// when multiple fuzzers produce the same domain the lexicographically first
// fuzzer wins.
func (g *Generator) Generate(ctx context.Context, seed string) <-chan Candidate {
	out := make(chan Candidate)

	go func() {
		defer close(out)

		seed, err := Normalize(seed)
		if err != nil || !Valid(seed) {
			return
		}
		label, suffix, found := strings.Cut(seed, ".")
		if !found {
			return
		}

		seen := stringsetOf(seed)
		emit := func(domain, fuzzer string) bool {
			if ctx.Err() != nil {
				return false
			}
			if domain == seed || !Valid(domain) {
				return true
			}
			if _, found := seen[domain]; found {
				return true
			}
			seen[domain] = struct{}{}

			select {
			case out <- Candidate{Domain: domain, Fuzzer: fuzzer}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// The seed itself always leads the stream
		select {
		case out <- Candidate{Domain: seed, Fuzzer: FuzzerOriginal}:
		case <-ctx.Done():
			return
		}

		// Fuzzers run in lexicographic tag order so that the dedup rule
		// favoring the lexicographically first fuzzer falls out of the
		// emission order
		for _, f := range g.fuzzers() {
			for _, domain := range f.generate(label, suffix) {
				if !emit(domain, f.tag) {
					return
				}
			}
		}
	}()

	return out
}

// All drains Generate and returns the full candidate set.
func (g *Generator) All(seed string) []Candidate {
	var candidates []Candidate

	for c := range g.Generate(context.Background(), seed) {
		candidates = append(candidates, c)
	}
	return candidates
}

type fuzzer struct {
	tag      string
	generate func(label, suffix string) []string
}

func (g *Generator) fuzzers() []fuzzer {
	set := []fuzzer{
		{FuzzerAddition, addition},
		{FuzzerBitsquat, bitsquat},
	}
	if g.opts.ComboSquatting {
		set = append(set, fuzzer{FuzzerCombo, g.combo})
	}
	set = append(set,
		fuzzer{FuzzerHomoglyph, homoglyph},
		fuzzer{FuzzerHyphenation, hyphenation},
	)
	if g.opts.IDNHomograph {
		set = append(set, fuzzer{FuzzerIDNHomograph, g.idnHomograph})
	}
	set = append(set,
		fuzzer{FuzzerOmission, omission},
		fuzzer{FuzzerRepetition, repetition},
		fuzzer{FuzzerReplacement, replacement},
	)
	if g.opts.SoundAlike {
		set = append(set, fuzzer{FuzzerSoundAlike, soundAlike})
	}
	set = append(set,
		fuzzer{FuzzerSubdomain, subdomain},
		fuzzer{FuzzerTLDSwap, g.tldSwap},
		fuzzer{FuzzerTransposition, transposition},
		fuzzer{FuzzerVowelSwap, vowelSwap},
	)
	return set
}

func stringsetOf(elements ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(elements))
	for _, e := range elements {
		set[e] = struct{}{}
	}
	return set
}

func domainOf(label, suffix string) string {
	if suffix == "" {
		return label
	}
	return label + "." + suffix
}

func validLabel(label string) bool {
	if label == "" || len(label) > maxLabelLen {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return false
		}
	}
	return true
}
