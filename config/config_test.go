// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chiefgyk3d/typo-sniper/secrets"
	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, 10, c.MaxWorkers)
	assert.Equal(t, 1.0, c.RateLimitDelay)
	assert.True(t, c.UseCache)
	assert.Equal(t, 86400, c.CacheTTL)
	assert.Equal(t, 2, c.DNSRetryCount)
	assert.Equal(t, 30, c.WhoisTimeout)
	assert.Equal(t, Auto, c.EnableURLScan)
	assert.Equal(t, "public", c.URLScanVisibility)
	assert.True(t, c.EnableCertTransparency)
	assert.True(t, c.EnableHTTPProbe)
	assert.True(t, c.EnableRiskScoring)
	assert.False(t, c.EnableComboSquatting)
	assert.False(t, c.EnableML)
	assert.NoError(t, c.CheckSettings())
}

func TestLoadSettings(t *testing.T) {
	path := writeConfig(t, `
max_workers: 4
rate_limit_delay: 0.5
months_filter: 6
enable_combosquatting: true
enable_urlscan: on
urlscan_api_key: test-key
whois_retry_count: 5
`)

	c := NewConfig()
	if err := c.LoadSettings(path); err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	assert.Equal(t, 4, c.MaxWorkers)
	assert.Equal(t, 0.5, c.RateLimitDelay)
	assert.Equal(t, 6, c.MonthsFilter)
	assert.True(t, c.EnableComboSquatting)
	assert.Equal(t, On, c.EnableURLScan)
	assert.Equal(t, "test-key", c.URLScanAPIKey)
	assert.Equal(t, 5, c.WhoisRetryCount)
	// Untouched keys keep their defaults
	assert.Equal(t, 86400, c.CacheTTL)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	c := NewConfig()

	if err := c.LoadSettings(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadSettings() accepted a missing file")
	}
}

func TestTriStateParsing(t *testing.T) {
	cases := []struct {
		yaml string
		want TriState
	}{
		{"enable_urlscan: auto", Auto},
		{"enable_urlscan: true", On},
		{"enable_urlscan: on", On},
		{"enable_urlscan: false", Off},
		{"enable_urlscan: off", Off},
	}
	for _, tc := range cases {
		c := NewConfig()
		if err := c.LoadSettings(writeConfig(t, tc.yaml)); err != nil {
			t.Errorf("LoadSettings(%q) error = %v", tc.yaml, err)
			continue
		}
		assert.Equal(t, tc.want, c.EnableURLScan, tc.yaml)
	}

	c := NewConfig()
	if err := c.LoadSettings(writeConfig(t, "enable_urlscan: maybe")); err == nil {
		t.Error("LoadSettings() accepted an invalid tri-state value")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(secrets.EnvPrefix+"MAX_WORKERS", "3")
	t.Setenv(secrets.EnvPrefix+"CACHE_TTL", "600")

	c := NewConfig()
	if err := c.LoadSettings(writeConfig(t, "max_workers: 20")); err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	// The environment wins over the file
	assert.Equal(t, 3, c.MaxWorkers)
	assert.Equal(t, 600, c.CacheTTL)
}

func TestCheckSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"negative delay", func(c *Config) { c.RateLimitDelay = -1 }},
		{"negative months", func(c *Config) { c.MonthsFilter = -2 }},
		{"bad visibility", func(c *Config) { c.URLScanVisibility = "hidden" }},
		{"uncertainty out of range", func(c *Config) { c.MLUncertaintyThreshold = 0.9 }},
		{"negative budget", func(c *Config) { c.MLReviewBudget = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConfig()
			tc.mutate(c)
			if err := c.CheckSettings(); err == nil {
				t.Error("CheckSettings() accepted an invalid configuration")
			}
		})
	}
}

func TestResolveSecretsAuto(t *testing.T) {
	c := NewConfig()
	r := secrets.NewResolver(c.SecretValues(), nil)

	// Auto with no key resolvable leaves the enricher off
	if err := c.ResolveSecrets(context.Background(), r); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
	assert.False(t, c.URLScanEnabled())

	// Auto with a key in the environment enables it
	t.Setenv(secrets.EnvPrefix+"URLSCAN_API_KEY", "resolved")
	c = NewConfig()
	if err := c.ResolveSecrets(context.Background(), secrets.NewResolver(c.SecretValues(), nil)); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
	assert.True(t, c.URLScanEnabled())
	assert.Equal(t, "resolved", c.URLScanAPIKey)
}

func TestResolveSecretsExplicit(t *testing.T) {
	// Explicitly on without a key is a configuration error
	c := NewConfig()
	c.EnableURLScan = On
	if err := c.ResolveSecrets(context.Background(), secrets.NewResolver(nil, nil)); err == nil {
		t.Error("ResolveSecrets() accepted enable_urlscan without a key")
	}

	// Explicitly off discards a resolved key
	t.Setenv(secrets.EnvPrefix+"URLSCAN_API_KEY", "resolved")
	c = NewConfig()
	c.EnableURLScan = Off
	if err := c.ResolveSecrets(context.Background(), secrets.NewResolver(nil, nil)); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
	assert.False(t, c.URLScanEnabled())
}
