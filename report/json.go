// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"io"
)

// WriteJSON emits the scan metadata and every seed result as a single
// indented JSON document.
func WriteJSON(w io.Writer, meta *ScanMeta, results []*SeedResult) error {
	out := struct {
		Scan    *ScanMeta     `json:"scan"`
		Results []*SeedResult `json:"results"`
	}{
		Scan:    meta,
		Results: results,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}
