// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package ml adds an optional classifier pass over assembled records. The
// hook is strictly additive: a failing or panicking scorer leaves the ml
// field null and never blocks emission.
package ml

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chiefgyk3d/typo-sniper/fuzz"
	"github.com/chiefgyk3d/typo-sniper/report"
)

// MaxBatchSize is the largest number of records handed to the scorer at once.
const MaxBatchSize = 256

// Defaults for the active learning selection.
const (
	DefaultUncertainty  = 0.15
	DefaultReviewBudget = 50
)

// Scorer classifies a single assembled record.
type Scorer interface {
	Score(rec *report.PermutationRecord) (*report.MLResult, error)
}

// Hook drives the scorer over scan output in bounded batches.
type Hook struct {
	scorer       Scorer
	uncertainty  float64
	reviewBudget int
	log          *slog.Logger
}

// NewHook returns a Hook around the provided scorer.
func NewHook(scorer Scorer, uncertainty float64, reviewBudget int, log *slog.Logger) *Hook {
	if uncertainty <= 0 {
		uncertainty = DefaultUncertainty
	}
	if reviewBudget <= 0 {
		reviewBudget = DefaultReviewBudget
	}
	if log == nil {
		log = slog.Default()
	}

	return &Hook{
		scorer:       scorer,
		uncertainty:  uncertainty,
		reviewBudget: reviewBudget,
		log:          log,
	}
}

// ScoreBatch annotates the records in place, processing at most MaxBatchSize
// at a time. A panic inside the scorer is contained to its batch.
func (h *Hook) ScoreBatch(records []*report.PermutationRecord) {
	if h == nil || h.scorer == nil {
		return
	}

	for start := 0; start < len(records); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(records) {
			end = len(records)
		}
		h.scoreChunk(records[start:end])
	}
}

func (h *Hook) scoreChunk(records []*report.PermutationRecord) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("The ML scorer panicked; records in the batch are unscored", "panic", r)
			for _, rec := range records {
				rec.ML = nil
			}
		}
	}()

	for _, rec := range records {
		result, err := h.scorer.Score(rec)
		if err != nil {
			h.log.Warn("The ML scorer failed for a record", "domain", rec.Domain, "err", err)
			rec.ML = nil
			continue
		}
		result.NeedsReview = h.uncertain(result.Confidence)
		rec.ML = result
	}
}

func (h *Hook) uncertain(confidence float64) bool {
	return confidence >= 0.5-h.uncertainty && confidence <= 0.5+h.uncertainty
}

// SelectForReview returns up to the review budget of scored records whose
// confidence falls inside the uncertainty band, most uncertain first.
func (h *Hook) SelectForReview(records []*report.PermutationRecord) []*report.PermutationRecord {
	var selected []*report.PermutationRecord

	for _, rec := range records {
		if rec.ML != nil && h.uncertain(rec.ML.Confidence) {
			selected = append(selected, rec)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return math.Abs(selected[i].ML.Confidence-0.5) < math.Abs(selected[j].ML.Confidence-0.5)
	})
	if len(selected) > h.reviewBudget {
		selected = selected[:h.reviewBudget]
	}
	return selected
}

// ExportReviewBatch writes the selected records to a JSON sidecar file for
// human labeling.
func (h *Hook) ExportReviewBatch(path string, records []*report.PermutationRecord) error {
	selected := h.SelectForReview(records)

	out := struct {
		GeneratedAt time.Time                   `json:"generated_at"`
		Count       int                         `json:"count"`
		Records     []*report.PermutationRecord `json:"records"`
	}{
		GeneratedAt: time.Now().UTC(),
		Count:       len(selected),
		Records:     selected,
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write the review batch: %v", err)
	}

	h.log.Info("Wrote the active learning review batch", "path", path, "count", len(selected))
	return nil
}

// HeuristicWeights parameterize the fallback logistic scorer. A JSON model
// file can override any subset of them.
type HeuristicWeights struct {
	Bias             float64 `json:"bias"`
	RiskScore        float64 `json:"risk_score"`
	ActiveSite       float64 `json:"active_site"`
	RecentDomain     float64 `json:"recent_domain"`
	PrivacyProxy     float64 `json:"privacy_proxy"`
	DeceptiveFuzzer  float64 `json:"deceptive_fuzzer"`
	CertPresence     float64 `json:"cert_presence"`
	MaliciousVerdict float64 `json:"malicious_verdict"`
}

func defaultWeights() HeuristicWeights {
	return HeuristicWeights{
		Bias:             -2.0,
		RiskScore:        0.04,
		ActiveSite:       0.5,
		RecentDomain:     0.8,
		PrivacyProxy:     0.4,
		DeceptiveFuzzer:  0.7,
		CertPresence:     0.2,
		MaliciousVerdict: 1.5,
	}
}

// HeuristicScorer is the built-in logistic model used when no trained model
// is configured.
type HeuristicScorer struct {
	weights HeuristicWeights
}

// NewHeuristicScorer returns the fallback scorer, optionally loading weight
// overrides from the JSON file at modelPath.
func NewHeuristicScorer(modelPath string) (*HeuristicScorer, error) {
	weights := defaultWeights()

	if modelPath != "" {
		data, err := os.ReadFile(modelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read the model file: %s: %v", modelPath, err)
		}
		if err := json.Unmarshal(data, &weights); err != nil {
			return nil, fmt.Errorf("failed to parse the model file: %s: %v", modelPath, err)
		}
	}
	return &HeuristicScorer{weights: weights}, nil
}

// Score implements the Scorer interface.
func (s *HeuristicScorer) Score(rec *report.PermutationRecord) (*report.MLResult, error) {
	w := s.weights
	sum := w.Bias + w.RiskScore*float64(rec.RiskScore)

	var signals []string
	if p := rec.ThreatIntel.HTTPProbe; p != nil && p.Active {
		sum += w.ActiveSite
		signals = append(signals, "active site")
	}
	if rec.Recent {
		sum += w.RecentDomain
		signals = append(signals, "recent registration")
	}
	if rec.Whois.PrivacyProxy {
		sum += w.PrivacyProxy
		signals = append(signals, "privacy proxy")
	}
	if rec.Fuzzer == fuzz.FuzzerHomoglyph || rec.Fuzzer == fuzz.FuzzerIDNHomograph {
		sum += w.DeceptiveFuzzer
		signals = append(signals, "deceptive fuzzer")
	}
	if ct := rec.ThreatIntel.CertificateTransparency; ct != nil && ct.Count > 0 {
		sum += w.CertPresence
		signals = append(signals, "certificates issued")
	}
	if u := rec.ThreatIntel.URLScan; u != nil && u.Verdict == report.VerdictMalicious {
		sum += w.MaliciousVerdict
		signals = append(signals, "malicious verdict")
	}

	p := sigmoid(sum)
	verdict := report.MLVerdictLegitimate
	if p >= 0.5 {
		verdict = report.MLVerdictTyposquat
	}

	explanation := "no strong signals"
	if len(signals) > 0 {
		explanation = "signals: " + strings.Join(signals, ", ")
	}

	return &report.MLResult{
		Risk:        int(math.Round(p * 100)),
		Confidence:  p,
		Verdict:     verdict,
		Explanation: explanation,
	}, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
