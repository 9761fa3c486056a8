// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package resources provides the data tables compiled into the binary. The
// tables are versioned files so that keyword and confusable updates are code
// reviewed like any other change.
package resources

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"strings"
)

//go:embed tlds.txt keywords.txt confusables.txt
var resourceFS embed.FS

// GetResourceFile returns a reader for the named embedded file.
func GetResourceFile(path string) (io.Reader, error) {
	file, err := resourceFS.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain the embedded file: %s: %v", path, err)
	}
	return file, err
}

// GetTLDs returns the TLD popularity list used by the tld-swap fuzzer.
func GetTLDs() ([]string, error) {
	return getLines("tlds.txt")
}

// GetComboKeywords returns the keyword list used by the combo-squat fuzzer.
func GetComboKeywords() ([]string, error) {
	return getLines("keywords.txt")
}

// GetConfusables returns the ASCII to confusable code point substitution
// table used by the IDN homograph fuzzer.
func GetConfusables() (map[rune][]rune, error) {
	file, err := GetResourceFile("confusables.txt")
	if err != nil {
		return nil, err
	}

	table := make(map[rune][]rune)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		key := []rune(fields[0])
		if len(key) != 1 {
			continue
		}
		for _, f := range fields[1:] {
			if r := []rune(f); len(r) == 1 {
				table[key[0]] = append(table[key[0]], r[0])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read the confusable table: %v", err)
	}
	return table, nil
}

func getLines(path string) ([]string, error) {
	file, err := GetResourceFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, found := seen[line]; found {
			continue
		}

		seen[line] = struct{}{}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read the embedded file: %s: %v", path, err)
	}
	return lines, nil
}
