// Package config holds the reviewlens configuration and its loading rules.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/conventions"
	"github.com/reviewlens/reviewlens/internal/hotspot"
	"github.com/reviewlens/reviewlens/internal/model"
)

// FileName is the repository-local config file looked up by default.
const FileName = ".reviewlens.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REVIEWLENS_"

// FailOnNone never fails the run on findings.
const FailOnNone = "none"

// Summary providers.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the effective configuration of a run.
type Config struct {
	Rules       map[string]RuleConfig `yaml:"rules,omitempty"`
	Paths       PathsConfig           `yaml:"paths"`
	Privacy     PrivacyConfig         `yaml:"privacy"`
	Hotspots    HotspotsConfig        `yaml:"hotspots"`
	Conventions ConventionsConfig     `yaml:"conventions"`
	FailOn      string                `yaml:"fail_on"`
	IndexPath   string                `yaml:"index_path"`
	Budget      time.Duration         `yaml:"budget"`
	Workers     int                   `yaml:"workers,omitempty"`
	Summary     SummaryConfig         `yaml:"summary"`
	Telemetry   TelemetryConfig       `yaml:"telemetry"`
}

// RuleConfig toggles a rule or overrides its severity.
type RuleConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Severity string `yaml:"severity,omitempty"`
}

// PathsConfig limits which repository paths are reviewed and indexed.
type PathsConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// PrivacyConfig controls redaction of report text.
type PrivacyConfig struct {
	Redaction bool     `yaml:"redaction"`
	Patterns  []string `yaml:"patterns,omitempty"`
}

// HotspotsConfig weights the hotspot score.
type HotspotsConfig struct {
	SeverityWeight float64 `yaml:"severity_weight"`
	ChurnWeight    float64 `yaml:"churn_weight"`
	TopK           int     `yaml:"top_k"`
}

// ConventionsConfig tunes deviation detection.
type ConventionsConfig struct {
	DominanceThreshold float64 `yaml:"dominance_threshold"`
	MinSamples         int     `yaml:"min_samples"`
}

// SummaryConfig selects the optional summarizer.
type SummaryConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TelemetryConfig enables the JSONL event log.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file,omitempty"`
}

// Error is an invalid configuration value or file.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	msg := "config"
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Rules: map[string]RuleConfig{},
		Paths: PathsConfig{
			Allow: []string{"**"},
			Deny:  []string{"vendor/**", "**/node_modules/**", "**/testdata/**", "**/*.min.js", "**/*.pb.go"},
		},
		Privacy: PrivacyConfig{Redaction: true},
		Hotspots: HotspotsConfig{
			SeverityWeight: hotspot.DefaultSeverityWeight,
			ChurnWeight:    hotspot.DefaultChurnWeight,
			TopK:           hotspot.DefaultTopK,
		},
		Conventions: ConventionsConfig{
			DominanceThreshold: conventions.DefaultThreshold,
			MinSamples:         conventions.DefaultMinSamples,
		},
		FailOn:    model.SeverityHigh.String(),
		IndexPath: conventions.DefaultPath,
		Budget:    60 * time.Second,
		Summary: SummaryConfig{
			Provider: ProviderNone,
			Timeout:  20 * time.Second,
		},
	}
}

// Load builds the effective config by merging
// defaults <- file <- environment <- overrides, then validates it.
//
// An empty path looks for FileName in repoDir, which may be absent. An
// explicit path must exist. Override keys use the dotted YAML names, for
// example "fail_on" or "summary.provider".
func Load(path, repoDir string, overrides map[string]string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(repoDir, FileName)
	}
	if err := mergeFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file over cfg, so keys absent from the file
// keep their current values.
func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return &Error{Key: path, Msg: "reading config file", Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &Error{Key: path, Msg: "parsing config file", Err: err}
	}
	if cfg.Rules == nil {
		cfg.Rules = map[string]RuleConfig{}
	}
	return nil
}

func mergeEnv(cfg *Config, getenv func(string) string) error {
	for _, key := range Keys() {
		if v := getenv(EnvName(key)); v != "" {
			if err := Set(cfg, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := overrides[k]; v != "" {
			if err := Set(cfg, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnvName returns the environment variable for a dotted key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Keys lists the scalar keys settable from the environment and overrides.
func Keys() []string {
	return []string{
		"fail_on",
		"budget",
		"index_path",
		"workers",
		"privacy.redaction",
		"hotspots.severity_weight",
		"hotspots.churn_weight",
		"hotspots.top_k",
		"conventions.dominance_threshold",
		"conventions.min_samples",
		"summary.provider",
		"summary.model",
		"summary.base_url",
		"summary.timeout",
		"telemetry.enabled",
		"telemetry.file",
	}
}

// Set assigns a single value by dotted key. Rule keys take the form
// rules.<id>.enabled and rules.<id>.severity.
func Set(cfg *Config, key, value string) error {
	bad := func(err error) error {
		return &Error{Key: key, Msg: fmt.Sprintf("invalid value %q", value), Err: err}
	}
	switch key {
	case "fail_on":
		cfg.FailOn = strings.ToLower(value)
	case "budget":
		d, err := parseDuration(value)
		if err != nil {
			return bad(err)
		}
		cfg.Budget = d
	case "index_path":
		cfg.IndexPath = value
	case "workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return bad(err)
		}
		cfg.Workers = n
	case "privacy.redaction":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return bad(err)
		}
		cfg.Privacy.Redaction = b
	case "hotspots.severity_weight", "hotspots.churn_weight", "conventions.dominance_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return bad(err)
		}
		switch key {
		case "hotspots.severity_weight":
			cfg.Hotspots.SeverityWeight = f
		case "hotspots.churn_weight":
			cfg.Hotspots.ChurnWeight = f
		default:
			cfg.Conventions.DominanceThreshold = f
		}
	case "hotspots.top_k", "conventions.min_samples":
		n, err := strconv.Atoi(value)
		if err != nil {
			return bad(err)
		}
		if key == "hotspots.top_k" {
			cfg.Hotspots.TopK = n
		} else {
			cfg.Conventions.MinSamples = n
		}
	case "summary.provider":
		cfg.Summary.Provider = strings.ToLower(value)
	case "summary.model":
		cfg.Summary.Model = value
	case "summary.base_url":
		cfg.Summary.BaseURL = value
	case "summary.timeout":
		d, err := parseDuration(value)
		if err != nil {
			return bad(err)
		}
		cfg.Summary.Timeout = d
	case "telemetry.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return bad(err)
		}
		cfg.Telemetry.Enabled = b
	case "telemetry.file":
		cfg.Telemetry.File = value
	default:
		return setRule(cfg, key, value)
	}
	return nil
}

func setRule(cfg *Config, key, value string) error {
	rest, ok := strings.CutPrefix(key, "rules.")
	if !ok {
		return &Error{Key: key, Msg: "unknown key"}
	}
	id, field, ok := strings.Cut(rest, ".")
	if !ok {
		return &Error{Key: key, Msg: "unknown key"}
	}
	if cfg.Rules == nil {
		cfg.Rules = map[string]RuleConfig{}
	}
	rc := cfg.Rules[id]
	switch field {
	case "enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &Error{Key: key, Msg: fmt.Sprintf("invalid value %q", value), Err: err}
		}
		rc.Enabled = &b
	case "severity":
		rc.Severity = strings.ToLower(value)
	default:
		return &Error{Key: key, Msg: "unknown key"}
	}
	cfg.Rules[id] = rc
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks every value and returns the first problem as an *Error.
func (c *Config) Validate() error {
	if c.FailOn != FailOnNone {
		if _, err := model.ParseSeverity(c.FailOn); err != nil {
			return &Error{Key: "fail_on", Msg: fmt.Sprintf("must be none, low, medium, high or critical, got %q", c.FailOn)}
		}
	}
	ids := make([]string, 0, len(c.Rules))
	for id := range c.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := analysis.Lookup(id); !ok {
			return &Error{Key: "rules." + id, Msg: fmt.Sprintf("unknown rule (known: %s)", strings.Join(analysis.RuleIDs(), ", "))}
		}
		if sev := c.Rules[id].Severity; sev != "" {
			if _, err := model.ParseSeverity(sev); err != nil {
				return &Error{Key: "rules." + id + ".severity", Msg: "invalid severity", Err: err}
			}
		}
	}
	for _, p := range append(append([]string(nil), c.Paths.Allow...), c.Paths.Deny...) {
		if !doublestar.ValidatePattern(p) {
			return &Error{Key: "paths", Msg: fmt.Sprintf("invalid glob %q", p)}
		}
	}
	for _, p := range c.Privacy.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return &Error{Key: "privacy.patterns", Msg: fmt.Sprintf("invalid pattern %q", p), Err: err}
		}
	}
	if c.Hotspots.SeverityWeight < 0 || c.Hotspots.ChurnWeight < 0 {
		return &Error{Key: "hotspots", Msg: "weights must not be negative"}
	}
	if c.Hotspots.TopK < 0 {
		return &Error{Key: "hotspots.top_k", Msg: "must not be negative"}
	}
	if t := c.Conventions.DominanceThreshold; t <= 0 || t > 1 {
		return &Error{Key: "conventions.dominance_threshold", Msg: "must be in (0, 1]"}
	}
	if c.Conventions.MinSamples < 1 {
		return &Error{Key: "conventions.min_samples", Msg: "must be at least 1"}
	}
	if c.Budget < 0 {
		return &Error{Key: "budget", Msg: "must not be negative"}
	}
	switch c.Summary.Provider {
	case "", ProviderNone, ProviderOpenAI, ProviderAnthropic:
	default:
		return &Error{Key: "summary.provider", Msg: fmt.Sprintf("unknown provider %q", c.Summary.Provider)}
	}
	if c.Summary.Timeout <= 0 {
		return &Error{Key: "summary.timeout", Msg: "must be positive"}
	}
	return nil
}

// Allow reports whether a repository path matches an allow glob and no
// deny glob.
func (c *Config) Allow(path string) bool {
	allowed := len(c.Paths.Allow) == 0
	for _, p := range c.Paths.Allow {
		if ok, _ := doublestar.Match(p, path); ok {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	for _, p := range c.Paths.Deny {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	return true
}

// RuleSettings resolves the per-rule configuration for the engine.
func (c *Config) RuleSettings() map[string]analysis.RuleSetting {
	out := make(map[string]analysis.RuleSetting)
	for _, id := range analysis.RuleIDs() {
		rs := analysis.RuleSetting{Enabled: true}
		if rc, ok := c.Rules[id]; ok {
			if rc.Enabled != nil {
				rs.Enabled = *rc.Enabled
			}
			if sev, err := model.ParseSeverity(rc.Severity); err == nil {
				rs.Severity = sev
			}
		}
		out[id] = rs
	}
	return out
}

// ResolveIndexPath returns IndexPath, anchored at repoDir when relative.
func (c *Config) ResolveIndexPath(repoDir string) string {
	if c.IndexPath == "" || filepath.IsAbs(c.IndexPath) {
		return c.IndexPath
	}
	return filepath.Join(repoDir, c.IndexPath)
}

// ToYAML renders the config as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}
