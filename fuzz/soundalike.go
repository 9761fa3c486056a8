// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzz

import "strings"

const letters = "abcdefghijklmnopqrstuvwxyz"

// soundAlike emits single-edit variants of the label that remain phonetically
// equivalent to it under Soundex or a simplified Metaphone.
func soundAlike(label, suffix string) []string {
	sx := soundex(label)
	mp := metaphone(label)
	if sx == "" && mp == "" {
		return nil
	}

	matches := func(v string) bool {
		if v == label {
			return false
		}
		return (sx != "" && soundex(v) == sx) || (mp != "" && metaphone(v) == mp)
	}

	var results []string
	add := func(l string) {
		if matches(l) && validLabel(l) {
			results = append(results, domainOf(l, suffix))
		}
	}

	for i := 0; i <= len(label); i++ {
		// Insertions
		for _, c := range []byte(letters) {
			add(label[:i] + string(c) + label[i:])
		}
		if i == len(label) {
			continue
		}
		// Deletions and substitutions
		add(label[:i] + label[i+1:])
		for _, c := range []byte(letters) {
			if c != label[i] {
				add(label[:i] + string(c) + label[i+1:])
			}
		}
	}
	return results
}

var soundexCodes = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundex implements the classic four-character American Soundex code.
func soundex(s string) string {
	var first byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			first = s[i]
			s = s[i:]
			break
		}
	}
	if first == 0 {
		return ""
	}

	code := []byte{first - 'a' + 'A'}
	prev := soundexCodes[first]
	for i := 1; i < len(s) && len(code) < 4; i++ {
		c := s[i]
		if c == 'h' || c == 'w' {
			continue
		}
		d := soundexCodes[c]
		if d != 0 && d != prev {
			code = append(code, d)
		}
		prev = d
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

// metaphone is a reduced Metaphone: enough to catch ph/f, c/k/q, and the
// other substitutions typosquatters lean on, without the full rule table.
func metaphone(s string) string {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 'p' && i+1 < len(s) && s[i+1] == 'h':
			b.WriteByte('f')
			i++
		case c == 'c' && i+1 < len(s) && s[i+1] == 'k':
			b.WriteByte('k')
			i++
		case c == 'c' && i+1 < len(s) && (s[i+1] == 'e' || s[i+1] == 'i' || s[i+1] == 'y'):
			b.WriteByte('s')
		case c == 'c' || c == 'q' || c == 'k':
			b.WriteByte('k')
		case c == 'x':
			b.WriteString("ks")
		case c == 'z':
			b.WriteByte('s')
		case c == 'g' && i+1 < len(s) && s[i+1] == 'h':
			b.WriteByte('g')
			i++
		case c == 'w' && i+1 < len(s) && s[i+1] == 'h':
			b.WriteByte('w')
			i++
		case isVowel(c):
			if i == 0 {
				b.WriteByte('a')
			}
		case c >= 'a' && c <= 'z':
			// Collapse doubled consonants
			if i+1 < len(s) && s[i+1] == c {
				i++
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}
