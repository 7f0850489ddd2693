package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validEnvs      = []string{"development", "production", "test"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitLab    GitLabConfig
	Report    ReportConfig
	Tokens    TokenConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string
	LogLevel   string
	Env        string
}

// GitLabConfig configures upstream GitLab API interactions.
type GitLabConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// ReportConfig bounds report generation.
type ReportConfig struct {
	MaxMRs      int
	Concurrency int
}

// TokenConfig configures token-at-rest storage. The encryption key is
// only ever read from the environment, never from the config file.
type TokenConfig struct {
	TTL                 time.Duration
	DataDir             string
	RedisURL            string
	EncryptionKeyBase64 string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads YAML configuration, applies environment overrides, and
// validates the result. A nil reader means env-only configuration.
func Load(reader io.Reader) (*Config, error) {
	return LoadWithEnv(reader, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(reader io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	var raw rawConfig
	if reader != nil {
		decoder := yaml.NewDecoder(reader)
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	cfg := raw.toConfig()
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := lookup("APP_ENV"); ok {
		cfg.Server.Env = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = v
	}
	if v, ok := lookup("GITLAB_BASE_URL"); ok {
		cfg.GitLab.BaseURL = v
	}
	if v, ok := lookup("REPORT_MAX_MRS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse REPORT_MAX_MRS %q: %w", v, err)
		}
		cfg.Report.MaxMRs = n
	}
	if v, ok := lookup("TOKEN_TTL_DAYS"); ok {
		days, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse TOKEN_TTL_DAYS %q: %w", v, err)
		}
		cfg.Tokens.TTL = time.Duration(days) * 24 * time.Hour
	}
	if v, ok := lookup("TOKEN_ENC_KEY_BASE64"); ok {
		cfg.Tokens.EncryptionKeyBase64 = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.Tokens.RedisURL = v
	}
	return nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if !slices.Contains(validEnvs, c.Server.Env) {
		errs = append(errs, "server.env must be one of development|production|test")
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	if parsed, err := url.Parse(c.GitLab.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, "gitlab.base_url must be an absolute URL")
	}
	if c.GitLab.RequestTimeout <= 0 {
		errs = append(errs, "gitlab.request_timeout must be > 0")
	}

	if c.Report.MaxMRs <= 0 {
		errs = append(errs, "report.max_mrs must be > 0")
	}
	if c.Report.Concurrency <= 0 {
		errs = append(errs, "report.concurrency must be > 0")
	}

	if c.Tokens.TTL <= 0 {
		errs = append(errs, "tokens.ttl must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.GitLab.BaseURL == "" {
		cfg.GitLab.BaseURL = "https://gitlab.com/api/v4/"
	}
	if cfg.GitLab.RequestTimeout == 0 {
		cfg.GitLab.RequestTimeout = 30 * time.Second
	}
	if cfg.Report.MaxMRs == 0 {
		cfg.Report.MaxMRs = 500
	}
	if cfg.Report.Concurrency == 0 {
		cfg.Report.Concurrency = 5
	}
	if cfg.Tokens.TTL == 0 {
		cfg.Tokens.TTL = 7 * 24 * time.Hour
	}
	if cfg.Tokens.DataDir == "" {
		cfg.Tokens.DataDir = ".data"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitLab    rawGitLab    `yaml:"gitlab"`
	Report    rawReport    `yaml:"report"`
	Tokens    rawTokens    `yaml:"tokens"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	Env        string `yaml:"env"`
}

type rawGitLab struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawReport struct {
	MaxMRs      int `yaml:"max_mrs"`
	Concurrency int `yaml:"concurrency"`
}

type rawTokens struct {
	TTL      duration `yaml:"ttl"`
	DataDir  string   `yaml:"data_dir"`
	RedisURL string   `yaml:"redis_url"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: r.Server.ListenAddr,
			LogLevel:   r.Server.LogLevel,
			Env:        r.Server.Env,
		},
		GitLab: GitLabConfig{
			BaseURL:        r.GitLab.BaseURL,
			RequestTimeout: r.GitLab.RequestTimeout.Duration,
		},
		Report: ReportConfig{
			MaxMRs:      r.Report.MaxMRs,
			Concurrency: r.Report.Concurrency,
		},
		Tokens: TokenConfig{
			TTL:      r.Tokens.TTL.Duration,
			DataDir:  r.Tokens.DataDir,
			RedisURL: r.Tokens.RedisURL,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
