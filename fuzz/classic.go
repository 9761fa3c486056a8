// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzz

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

var vowels = []byte("aeiou")

// qwerty maps each key to its physical neighbors on a US keyboard.
var qwerty = map[byte]string{
	'1': "2q", '2': "3wq1", '3': "4ew2", '4': "5re3", '5': "6tr4",
	'6': "7yt5", '7': "8uy6", '8': "9iu7", '9': "0oi8", '0': "po9",
	'q': "12wa", 'w': "3esaq2", 'e': "4rdsw3", 'r': "5tfde4", 't': "6ygfr5",
	'y': "7uhgt6", 'u': "8ijhy7", 'i': "9okju8", 'o': "0plki9", 'p': "lo0",
	'a': "qwsz", 's': "edxzaw", 'd': "rfcxse", 'f': "tgvcdr", 'g': "yhbvft",
	'h': "ujnbgy", 'j': "ikmnhu", 'k': "olmji", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn",
	'n': "bhjm", 'm': "njk",
}

// homoglyphs maps ASCII sequences to visually confusable ASCII replacements.
var homoglyphs = map[string][]string{
	"i":  {"1", "l"},
	"l":  {"1", "i"},
	"1":  {"l", "i"},
	"o":  {"0"},
	"0":  {"o"},
	"g":  {"q"},
	"q":  {"g"},
	"d":  {"cl"},
	"cl": {"d"},
	"m":  {"rn"},
	"rn": {"m"},
	"w":  {"vv"},
	"vv": {"w"},
	"u":  {"v"},
	"v":  {"u"},
}

func addition(label, suffix string) []string {
	var results []string

	for i := 0; i < len(alphanumeric); i++ {
		if l := label + string(alphanumeric[i]); validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}
	return results
}

func omission(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		if l := label[:i] + label[i+1:]; validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}
	return results
}

func repetition(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		if l := label[:i+1] + label[i:]; validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}
	return results
}

func replacement(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		for _, n := range []byte(qwerty[label[i]]) {
			if l := label[:i] + string(n) + label[i+1:]; validLabel(l) {
				results = append(results, domainOf(l, suffix))
			}
		}
	}
	return results
}

func transposition(label, suffix string) []string {
	var results []string

	for i := 0; i+1 < len(label); i++ {
		if label[i] == label[i+1] {
			continue
		}
		l := label[:i] + string(label[i+1]) + string(label[i]) + label[i+2:]
		if validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}
	return results
}

func hyphenation(label, suffix string) []string {
	var results []string

	for i := 1; i < len(label); i++ {
		if l := label[:i] + "-" + label[i:]; validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}
	return results
}

func vowelSwap(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		if !isVowel(label[i]) {
			continue
		}
		for _, v := range vowels {
			if v == label[i] {
				continue
			}
			if l := label[:i] + string(v) + label[i+1:]; validLabel(l) {
				results = append(results, domainOf(l, suffix))
			}
		}
	}
	return results
}

// bitsquat flips each bit of each character, keeping variants that remain
// within the DNS label charset.
func bitsquat(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		for bit := 0; bit < 8; bit++ {
			c := label[i] ^ (1 << bit)
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				continue
			}
			if l := label[:i] + string(c) + label[i+1:]; validLabel(l) {
				results = append(results, domainOf(l, suffix))
			}
		}
	}
	return results
}

func homoglyph(label, suffix string) []string {
	var results []string

	for i := 0; i < len(label); i++ {
		for _, width := range []int{1, 2} {
			if i+width > len(label) {
				continue
			}
			for _, sub := range homoglyphs[label[i:i+width]] {
				if l := label[:i] + sub + label[i+width:]; validLabel(l) {
					results = append(results, domainOf(l, suffix))
				}
			}
		}
	}
	return results
}

func subdomain(label, suffix string) []string {
	var results []string

	for i := 1; i < len(label); i++ {
		if label[i] == '-' || label[i-1] == '-' {
			continue
		}
		if validLabel(label[:i]) && validLabel(label[i:]) {
			results = append(results, domainOf(label[:i]+"."+label[i:], suffix))
		}
	}
	return results
}

func (g *Generator) tldSwap(label, suffix string) []string {
	var results []string

	for _, tld := range g.tlds {
		if tld == suffix {
			continue
		}
		results = append(results, label+"."+tld)
	}
	return results
}

func isVowel(c byte) bool {
	for _, v := range vowels {
		if c == v {
			return true
		}
	}
	return false
}
