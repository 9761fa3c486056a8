// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatHTML  = "html"
	FormatExcel = "excel"
)

// Formats lists every supported output format.
var Formats = []string{FormatExcel, FormatJSON, FormatCSV, FormatHTML}

// ValidFormat reports whether the name is a supported output format.
func ValidFormat(name string) bool {
	for _, f := range Formats {
		if f == name {
			return true
		}
	}
	return false
}

// Export writes the scan in each requested format under dir and returns the
// paths written.
func Export(dir string, formats []string, meta *ScanMeta, results []*SeedResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create the output directory: %s: %v", dir, err)
	}

	stamp := meta.StartTime.Format("20060102_150405")
	var written []string
	for _, format := range formats {
		path := filepath.Join(dir, "typo_sniper_"+stamp+extensionOf(format))

		var err error
		switch format {
		case FormatJSON:
			err = writeFile(path, func(f *os.File) error { return WriteJSON(f, meta, results) })
		case FormatCSV:
			err = writeFile(path, func(f *os.File) error { return WriteCSV(f, meta, results) })
		case FormatHTML:
			err = writeFile(path, func(f *os.File) error { return WriteHTML(f, meta, results) })
		case FormatExcel:
			err = WriteExcel(path, meta, results)
		default:
			err = fmt.Errorf("not a supported output format: %s", format)
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func extensionOf(format string) string {
	if format == FormatExcel {
		return ".xlsx"
	}
	return "." + format
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return write(f)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
