// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package config holds the scan settings loaded from YAML, overlaid by
// environment variables and command line flags in that priority order.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chiefgyk3d/typo-sniper/secrets"
	"gopkg.in/yaml.v3"
)

// TriState is a flag that can be explicitly on, explicitly off, or left to
// the program to decide.
type TriState int

// TriState values.
const (
	Auto TriState = iota
	On
	Off
)

// UnmarshalYAML accepts booleans and the strings auto, on, and off.
func (t *TriState) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "", "auto":
		*t = Auto
	case "true", "on", "yes":
		*t = On
	case "false", "off", "no":
		*t = Off
	default:
		return fmt.Errorf("not a valid tri-state value: %s", value.Value)
	}
	return nil
}

// Config passes along optional scan settings. Zero value fields are replaced
// with defaults by NewConfig.
type Config struct {
	// The maximum number of concurrent DNS resolutions
	MaxWorkers int `yaml:"max_workers"`
	// Seconds slept between batches of DNS submissions
	RateLimitDelay float64 `yaml:"rate_limit_delay"`
	// Overall scan deadline in seconds, zero meaning none
	ScanTimeout int `yaml:"scan_timeout"`

	UseCache bool   `yaml:"use_cache"`
	CacheDir string `yaml:"cache_dir"`
	CacheTTL int    `yaml:"cache_ttl"`

	// Emit only domains registered within this many months, zero meaning all
	MonthsFilter int `yaml:"months_filter"`

	DNSServers    []string `yaml:"dns_servers"`
	DNSTimeout    int      `yaml:"dns_timeout"`
	DNSRetryCount int      `yaml:"dns_retry_count"`

	WhoisTimeout    int     `yaml:"whois_timeout"`
	WhoisRetryCount int     `yaml:"whois_retry_count"`
	WhoisRetryDelay float64 `yaml:"whois_retry_delay"`

	EnableComboSquatting bool `yaml:"enable_combosquatting"`
	EnableSoundAlike     bool `yaml:"enable_soundalike"`
	EnableIDNHomograph   bool `yaml:"enable_idn_homograph"`

	EnableURLScan      TriState `yaml:"enable_urlscan"`
	URLScanAPIKey      string   `yaml:"urlscan_api_key"`
	URLScanMaxAgeDays  int      `yaml:"urlscan_max_age_days"`
	URLScanWaitTimeout int      `yaml:"urlscan_wait_timeout"`
	URLScanVisibility  string   `yaml:"urlscan_visibility"`

	EnableCertTransparency bool `yaml:"enable_certificate_transparency"`
	EnableHTTPProbe        bool `yaml:"enable_http_probe"`
	HTTPTimeout            int  `yaml:"http_timeout"`

	EnableRiskScoring bool `yaml:"enable_risk_scoring"`

	EnableML               bool    `yaml:"enable_ml"`
	MLModelPath            string  `yaml:"ml_model_path"`
	MLConfidenceThreshold  float64 `yaml:"ml_confidence_threshold"`
	MLEnableActiveLearning bool    `yaml:"ml_enable_active_learning"`
	MLUncertaintyThreshold float64 `yaml:"ml_uncertainty_threshold"`
	MLReviewBudget         int     `yaml:"ml_review_budget"`

	// The log handler shared across the scan
	Log *slog.Logger `yaml:"-"`
}

// NewConfig returns a Config with the default settings applied.
func NewConfig() *Config {
	return &Config{
		MaxWorkers:             10,
		RateLimitDelay:         1.0,
		UseCache:               true,
		CacheDir:               defaultCacheDir(),
		CacheTTL:               86400,
		DNSTimeout:             5,
		DNSRetryCount:          2,
		WhoisTimeout:           30,
		WhoisRetryCount:        2,
		WhoisRetryDelay:        2.0,
		URLScanMaxAgeDays:      7,
		URLScanWaitTimeout:     90,
		URLScanVisibility:      "public",
		EnableCertTransparency: true,
		EnableHTTPProbe:        true,
		HTTPTimeout:            10,
		EnableRiskScoring:      true,
		MLConfidenceThreshold:  0.5,
		MLUncertaintyThreshold: 0.15,
		MLReviewBudget:         50,
		Log:                    slog.Default(),
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "typo-sniper")
	}
	return ".typo-sniper-cache"
}

// LoadSettings parses the YAML file at path over the defaults, then applies
// the environment overrides.
func (c *Config) LoadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load the configuration file: %v", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse the configuration file: %v", err)
	}

	c.ApplyEnvOverrides()
	return c.CheckSettings()
}

// ApplyEnvOverrides overlays TYPO_SNIPER_ prefixed environment variables over
// the current settings. Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := envInt("MAX_WORKERS"); ok {
		c.MaxWorkers = v
	}
	if v, ok := envFloat("RATE_LIMIT_DELAY"); ok {
		c.RateLimitDelay = v
	}
	if v := os.Getenv(secrets.EnvPrefix + "CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v, ok := envInt("CACHE_TTL"); ok {
		c.CacheTTL = v
	}
	if v, ok := envInt("MONTHS_FILTER"); ok {
		c.MonthsFilter = v
	}
	if v, ok := envInt("SCAN_TIMEOUT"); ok {
		c.ScanTimeout = v
	}
}

func envInt(name string) (int, bool) {
	if v := os.Getenv(secrets.EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func envFloat(name string) (float64, bool) {
	if v := os.Getenv(secrets.EnvPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// CheckSettings verifies that the configuration is usable for a scan.
func (c *Config) CheckSettings() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, have %d", c.MaxWorkers)
	}
	if c.RateLimitDelay < 0 {
		return fmt.Errorf("rate_limit_delay cannot be negative, have %f", c.RateLimitDelay)
	}
	if c.MonthsFilter < 0 {
		return fmt.Errorf("months_filter cannot be negative, have %d", c.MonthsFilter)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative, have %d", c.CacheTTL)
	}

	switch c.URLScanVisibility {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("not a valid urlscan_visibility: %s", c.URLScanVisibility)
	}

	if c.MLUncertaintyThreshold < 0 || c.MLUncertaintyThreshold > 0.5 {
		return fmt.Errorf("ml_uncertainty_threshold must be within [0, 0.5], have %f", c.MLUncertaintyThreshold)
	}
	if c.MLConfidenceThreshold < 0 || c.MLConfidenceThreshold > 1 {
		return fmt.Errorf("ml_confidence_threshold must be within [0, 1], have %f", c.MLConfidenceThreshold)
	}
	if c.MLReviewBudget < 0 {
		return fmt.Errorf("ml_review_budget cannot be negative, have %d", c.MLReviewBudget)
	}
	return nil
}

// ResolveSecrets fills credential fields through the resolver chain and
// settles the URLScan tri-state. With enable_urlscan set to auto, the
// enricher runs iff a key was resolved; explicitly enabling it without a
// resolvable key is a configuration error.
func (c *Config) ResolveSecrets(ctx context.Context, r *secrets.Resolver) error {
	if c.URLScanAPIKey == "" {
		c.URLScanAPIKey = r.Resolve(ctx, "urlscan_api_key")
	}

	switch c.EnableURLScan {
	case Off:
		c.URLScanAPIKey = ""
	case On:
		if c.URLScanAPIKey == "" {
			return fmt.Errorf("enable_urlscan is set but no urlscan_api_key could be resolved")
		}
	}
	return nil
}

// URLScanEnabled reports whether the URLScan enricher will run.
func (c *Config) URLScanEnabled() bool {
	return c.EnableURLScan != Off && c.URLScanAPIKey != ""
}

// SecretValues exposes the config-file credential fields as the final source
// for the secret resolver chain.
func (c *Config) SecretValues() map[string]string {
	return map[string]string{
		"urlscan_api_key": c.URLScanAPIKey,
	}
}
