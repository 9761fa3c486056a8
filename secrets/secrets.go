// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package secrets resolves named credentials from an ordered chain of
// sources. Resolution never fails loudly: an unreachable source is skipped
// and an unresolvable name yields the empty string, letting enrichers decide
// whether they can run.
package secrets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// EnvPrefix namespaces the highest priority environment variables.
const EnvPrefix = "TYPO_SNIPER_"

const dopplerDownloadURL = "https://api.doppler.com/v3/configs/config/secrets/download?format=json"

// Resolver walks the source chain for each requested name. It is safe for
// concurrent use; remote sources are fetched once and memoized.
type Resolver struct {
	sync.Mutex
	config   map[string]string
	client   *http.Client
	log      *slog.Logger
	doppler  map[string]string
	aws      map[string]string
	fetched  map[string]bool
	override struct {
		dopplerURL string
		awsFetch   func(ctx context.Context, name string) (string, error)
	}
}

// NewResolver returns a Resolver that falls back to the provided config-file
// values as the final source.
func NewResolver(configValues map[string]string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{
		config:  configValues,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		fetched: make(map[string]bool),
	}
}

// Resolve returns the first non-empty value for the name, trying the
// prefixed environment, Doppler, AWS Secrets Manager, the bare environment,
// and the config file in that order.
func (r *Resolver) Resolve(ctx context.Context, name string) string {
	upper := strings.ToUpper(name)

	if v := os.Getenv(EnvPrefix + upper); v != "" {
		return v
	}
	if v := r.fromDoppler(ctx, upper); v != "" {
		return v
	}
	if v := r.fromAWS(ctx, strings.ToLower(name)); v != "" {
		return v
	}
	if v := os.Getenv(upper); v != "" {
		return v
	}
	return r.config[strings.ToLower(name)]
}

// fromDoppler downloads the project secrets once when DOPPLER_TOKEN is set.
func (r *Resolver) fromDoppler(ctx context.Context, upper string) string {
	token := os.Getenv("DOPPLER_TOKEN")
	if token == "" {
		return ""
	}

	r.Lock()
	defer r.Unlock()

	if !r.fetched["doppler"] {
		r.fetched["doppler"] = true
		r.doppler = r.downloadDoppler(ctx, token)
	}
	return r.doppler[upper]
}

func (r *Resolver) downloadDoppler(ctx context.Context, token string) map[string]string {
	url := dopplerDownloadURL
	if r.override.dopplerURL != "" {
		url = r.override.dopplerURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.SetBasicAuth(token, "")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("Doppler is unreachable", "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Debug("Doppler rejected the request", "status", resp.StatusCode)
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var secrets map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&secrets); err != nil {
		r.log.Debug("Failed to decode the Doppler response", "err", err)
		return nil
	}
	return secrets
}

// fromAWS reads the configured Secrets Manager secret once and extracts JSON
// fields from it. AWS_SECRET_NAME selects the secret.
func (r *Resolver) fromAWS(ctx context.Context, field string) string {
	secretName := os.Getenv("AWS_SECRET_NAME")
	if secretName == "" {
		return ""
	}

	r.Lock()
	defer r.Unlock()

	if !r.fetched["aws"] {
		r.fetched["aws"] = true

		raw, err := r.fetchAWSSecret(ctx, secretName)
		if err != nil {
			r.log.Debug("AWS Secrets Manager is unavailable", "secret", secretName, "err", err)
		} else if err := json.Unmarshal([]byte(raw), &r.aws); err != nil {
			r.log.Debug("The AWS secret is not a JSON object", "secret", secretName)
		}
	}
	return r.aws[field]
}

func (r *Resolver) fetchAWSSecret(ctx context.Context, name string) (string, error) {
	if r.override.awsFetch != nil {
		return r.override.awsFetch(ctx, name)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil {
		return "", nil
	}
	return *out.SecretString, nil
}
