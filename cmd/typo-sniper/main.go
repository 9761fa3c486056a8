// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// typo-sniper: Typosquat discovery and registration monitoring
//
//	+--------------------------------------------------------------+
//	| ░░░░░░░░░░░░░░░░░░░░░░░  Typo Sniper  ░░░░░░░░░░░░░░░░░░░░░░ |
//	+--------------------------------------------------------------+
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caffix/stringset"
	"github.com/chiefgyk3d/typo-sniper/cache"
	"github.com/chiefgyk3d/typo-sniper/config"
	"github.com/chiefgyk3d/typo-sniper/format"
	"github.com/chiefgyk3d/typo-sniper/fuzz"
	"github.com/chiefgyk3d/typo-sniper/intel"
	"github.com/chiefgyk3d/typo-sniper/ml"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/chiefgyk3d/typo-sniper/resolve"
	"github.com/chiefgyk3d/typo-sniper/scan"
	"github.com/chiefgyk3d/typo-sniper/secrets"
	"github.com/chiefgyk3d/typo-sniper/whois"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

const mainUsageMsg = "-i FILE [options]"

var (
	g = color.New(color.FgHiGreen)
	r = color.New(color.FgHiRed)
)

type sniperArgs struct {
	Domains *stringset.Set
	Formats *stringset.Set
	Months  int
	Workers int
	TTL     int
	Review  int
	Options struct {
		NoCache bool
		ML      bool
		NoColor bool
		Verbose bool
		Debug   bool
	}
	Filepaths struct {
		ConfigFile string
		SeedFile   string
		OutputDir  string
		MLModel    string
	}
}

func commandUsage(cmd *flag.FlagSet, errBuf *bytes.Buffer) {
	format.PrintBanner()
	g.Fprintf(color.Error, "Usage: %s %s\n\n", path.Base(os.Args[0]), mainUsageMsg)
	cmd.PrintDefaults()
	g.Fprintln(color.Error, errBuf.String())
	g.Fprintf(color.Error, "Output formats: %s\n", strings.Join(report.Formats, ", "))
}

func main() {
	var args sniperArgs
	var version, help1, help2 bool
	mainCommand := flag.NewFlagSet("typo-sniper", flag.ContinueOnError)

	args.Domains = stringset.New()
	defer args.Domains.Close()
	args.Formats = stringset.New()
	defer args.Formats.Close()

	mainBuf := new(bytes.Buffer)
	mainCommand.SetOutput(mainBuf)

	mainCommand.BoolVar(&help1, "h", false, "Show the program usage message")
	mainCommand.BoolVar(&help2, "help", false, "Show the program usage message")
	mainCommand.BoolVar(&version, "version", false, "Print the version number of this binary")
	mainCommand.StringVar(&args.Filepaths.SeedFile, "i", "", "Path to a file providing seed domain names")
	mainCommand.Var(args.Domains, "d", "Seed domain names separated by commas (can be used multiple times)")
	mainCommand.StringVar(&args.Filepaths.OutputDir, "o", ".", "Path to the directory receiving the reports")
	mainCommand.Var(args.Formats, "format", "Report formats separated by commas (default csv)")
	mainCommand.IntVar(&args.Months, "months", -1, "Emit only domains registered within this many months")
	mainCommand.StringVar(&args.Filepaths.ConfigFile, "config", "", "Path to the YAML configuration file")
	mainCommand.IntVar(&args.Workers, "max-workers", -1, "Maximum number of concurrent DNS resolutions")
	mainCommand.IntVar(&args.TTL, "cache-ttl", -1, "Cache entry time-to-live in seconds")
	mainCommand.BoolVar(&args.Options.NoCache, "no-cache", false, "Disable the on-disk enrichment cache")
	mainCommand.BoolVar(&args.Options.ML, "ml", false, "Run the machine learning classifier over the results")
	mainCommand.StringVar(&args.Filepaths.MLModel, "ml-model", "", "Path to a classifier weights file")
	mainCommand.IntVar(&args.Review, "ml-review", -1, "Maximum number of records selected for analyst review")
	mainCommand.BoolVar(&args.Options.Verbose, "v", false, "Output informational messages during the scan")
	mainCommand.BoolVar(&args.Options.Debug, "debug", false, "Output debug messages during the scan")
	mainCommand.BoolVar(&args.Options.NoColor, "nocolor", false, "Disable colorized output")

	if len(os.Args) < 2 {
		commandUsage(mainCommand, mainBuf)
		return
	}
	if err := mainCommand.Parse(os.Args[1:]); err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		os.Exit(1)
	}
	if help1 || help2 {
		commandUsage(mainCommand, mainBuf)
		return
	}
	if version {
		fmt.Fprintf(color.Error, "%s\n", format.Version)
		return
	}
	if args.Options.NoColor {
		color.NoColor = true
	}

	os.Exit(runScan(&args))
}

func runScan(args *sniperArgs) int {
	log := newLogger(args)

	cfg, err := buildConfig(args, log)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}

	seeds, err := gatherSeeds(args, log)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}

	formats := args.Formats.Slice()
	if len(formats) == 0 {
		formats = []string{report.FormatCSV}
	}
	for _, f := range formats {
		if !report.ValidFormat(f) {
			r.Fprintf(color.Error, "not a supported output format: %s\n", f)
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolver := secrets.NewResolver(cfg.SecretValues(), log)
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}

	store, cleanup, err := openCache(cfg, log)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}
	defer cleanup()

	scanner, hook, err := buildScanner(cfg, store, log)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}

	meta := &report.ScanMeta{
		ID:        uuid.New(),
		Version:   format.Version,
		StartTime: time.Now().UTC(),
		Seeds:     seeds,
		Features:  enabledFeatures(cfg),
	}

	format.PrintBanner()
	results := scanner.Scan(ctx, seeds)
	meta.EndTime = time.Now().UTC()

	paths, err := report.Export(args.Filepaths.OutputDir, formats, meta, results)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		return 1
	}
	for _, p := range paths {
		log.Info("Report written", "path", p)
	}

	if err := exportReview(cfg, args, hook, meta, results, log); err != nil {
		log.Warn("The review batch could not be exported", "err", err)
	}

	format.PrintScanSummary(results)
	if args.Options.Debug {
		stats := store.GetStats()
		log.Debug("Cache state", "entries", stats.TotalEntries,
			"expired", stats.ExpiredEntries, "bytes", stats.TotalSizeBytes, "dir", stats.Dir)
	}

	for _, result := range results {
		if result.Failed() {
			return 2
		}
	}
	return 0
}

// newLogger builds the slog handler shared by every component of the scan.
func newLogger(args *sniperArgs) *slog.Logger {
	level := slog.LevelWarn
	if args.Options.Verbose {
		level = slog.LevelInfo
	}
	if args.Options.Debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(color.Error, &slog.HandlerOptions{Level: level}))
}

// buildConfig loads the YAML settings when provided and overlays the command
// line flags, which win over both the file and the environment.
func buildConfig(args *sniperArgs, log *slog.Logger) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Log = log

	if args.Filepaths.ConfigFile != "" {
		if err := cfg.LoadSettings(args.Filepaths.ConfigFile); err != nil {
			return nil, err
		}
	} else {
		cfg.ApplyEnvOverrides()
	}

	if args.Workers >= 0 {
		cfg.MaxWorkers = args.Workers
	}
	if args.TTL >= 0 {
		cfg.CacheTTL = args.TTL
	}
	if args.Months >= 0 {
		cfg.MonthsFilter = args.Months
	}
	if args.Options.NoCache {
		cfg.UseCache = false
	}
	if args.Options.ML {
		cfg.EnableML = true
	}
	if args.Filepaths.MLModel != "" {
		cfg.MLModelPath = args.Filepaths.MLModel
	}
	if args.Review >= 0 {
		cfg.MLEnableActiveLearning = true
		cfg.MLReviewBudget = args.Review
	}

	return cfg, cfg.CheckSettings()
}

// gatherSeeds merges the -d flags with the seed file, normalizes each name
// to lowercase punycode, and drops duplicates and invalid entries.
func gatherSeeds(args *sniperArgs, log *slog.Logger) ([]string, error) {
	lines := args.Domains.Slice()

	if args.Filepaths.SeedFile != "" {
		fromFile, err := readSeedFile(args.Filepaths.SeedFile)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fromFile...)
	}

	seen := stringset.New()
	defer seen.Close()

	var seeds []string
	for _, line := range lines {
		seed, err := fuzz.Normalize(line)
		if err != nil || !fuzz.Valid(seed) {
			log.Warn("Skipping an invalid seed domain", "seed", line)
			continue
		}
		if seen.Has(seed) {
			continue
		}
		seen.Insert(seed)
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("no valid seed domains were provided")
	}
	return seeds, nil
}

// readSeedFile returns the seed lines, skipping blanks and # comments.
func readSeedFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open the seed file: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// openCache roots the store in the configured directory, or in a throwaway
// one when caching is disabled so nothing persists between runs.
func openCache(cfg *config.Config, log *slog.Logger) (*cache.Cache, func(), error) {
	dir := cfg.CacheDir
	cleanup := func() {}

	if !cfg.UseCache {
		tmp, err := os.MkdirTemp("", "typo-sniper-")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create the scratch cache: %v", err)
		}
		dir = tmp
		cleanup = func() { _ = os.RemoveAll(tmp) }
	}

	store, err := cache.New(dir, time.Duration(cfg.CacheTTL)*time.Second, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

// buildScanner wires the generator, the resolver and the enrichers selected
// by the configuration into a scan pipeline.
func buildScanner(cfg *config.Config, store *cache.Cache, log *slog.Logger) (*scan.Scanner, *ml.Hook, error) {
	gen, err := fuzz.NewGenerator(fuzz.Options{
		ComboSquatting: cfg.EnableComboSquatting,
		SoundAlike:     cfg.EnableSoundAlike,
		IDNHomograph:   cfg.EnableIDNHomograph,
	})
	if err != nil {
		return nil, nil, err
	}

	dns := resolve.New(cfg.DNSServers,
		time.Duration(cfg.DNSTimeout)*time.Second, cfg.DNSRetryCount, log)
	registrar := whois.NewClient(store,
		time.Duration(cfg.WhoisTimeout)*time.Second, cfg.WhoisRetryCount,
		time.Duration(cfg.WhoisRetryDelay*float64(time.Second)), log)

	var urlscan scan.URLScanLookup
	if cfg.URLScanEnabled() {
		urlscan = intel.NewURLScan(cfg.URLScanAPIKey, cfg.URLScanVisibility,
			cfg.URLScanMaxAgeDays, time.Duration(cfg.URLScanWaitTimeout)*time.Second, store, log)
	}
	var ct scan.CTLookup
	if cfg.EnableCertTransparency {
		ct = intel.NewCertTransparency(store, log)
	}
	var probe scan.HTTPProber
	if cfg.EnableHTTPProbe {
		probe = intel.NewHTTPProbe(time.Duration(cfg.HTTPTimeout)*time.Second, log)
	}

	var hook *ml.Hook
	if cfg.EnableML {
		scorer, err := ml.NewHeuristicScorer(cfg.MLModelPath)
		if err != nil {
			return nil, nil, err
		}
		hook = ml.NewHook(scorer, cfg.MLUncertaintyThreshold, cfg.MLReviewBudget, log)
	}

	return scan.NewScanner(cfg, gen, dns, registrar, urlscan, ct, probe, hook), hook, nil
}

// enabledFeatures names the optional behaviors active for this scan, which
// the exporters record in the scan metadata.
func enabledFeatures(cfg *config.Config) []string {
	var features []string

	if cfg.EnableComboSquatting {
		features = append(features, "combosquatting")
	}
	if cfg.EnableSoundAlike {
		features = append(features, "soundalike")
	}
	if cfg.EnableIDNHomograph {
		features = append(features, "idn-homograph")
	}
	if cfg.URLScanEnabled() {
		features = append(features, "urlscan")
	}
	if cfg.EnableCertTransparency {
		features = append(features, "certificate_transparency")
	}
	if cfg.EnableHTTPProbe {
		features = append(features, "http_probe")
	}
	if cfg.EnableML {
		features = append(features, "ml")
	}
	return features
}

// exportReview writes the active learning sidecar next to the reports.
func exportReview(cfg *config.Config, args *sniperArgs, hook *ml.Hook,
	meta *report.ScanMeta, results []*report.SeedResult, log *slog.Logger) error {
	if hook == nil || !cfg.MLEnableActiveLearning {
		return nil
	}

	var records []*report.PermutationRecord
	for _, result := range results {
		records = append(records, result.Records...)
	}

	selected := hook.SelectForReview(records)
	if len(selected) == 0 {
		return nil
	}

	stamp := meta.StartTime.Format("20060102_150405")
	path := filepath.Join(args.Filepaths.OutputDir, "typo_sniper_"+stamp+"_review.json")
	if err := hook.ExportReviewBatch(path, selected); err != nil {
		return err
	}

	log.Info("Review batch written", "path", path, "records", len(selected))
	return nil
}
