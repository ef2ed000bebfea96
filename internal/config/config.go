// Package config loads, validates, and normalises docsync service
// configuration and the per-repository .docsync.yml settings.
//
// Service configuration is layered: defaults, then YAML files, then
// environment overrides, then normalisation and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = 3000
	defaultShutdownTimeout    = 15 * time.Second
	defaultMaxBodyBytes       = 1 << 20
	defaultWebhookPath        = "/webhook"
	defaultSignatureHeader    = "X-Hub-Signature-256"
	defaultGitHubAPIURL       = "https://api.github.com"
	defaultGitHubTimeout      = 30 * time.Second
	defaultGenerationAPIURL   = "https://generativelanguage.googleapis.com"
	defaultGenerationTimeout  = 60 * time.Second
	defaultMaxAttempts        = 3
	defaultRetryBaseDelay     = 1500 * time.Millisecond
	defaultPrimaryBranch      = "main"
	defaultCooldown           = time.Minute
	defaultWorkers            = 1
	defaultRepoConfigPath     = ".docsync.yml"
	defaultReadinessTimeout   = 2 * time.Second
	defaultReadinessUserAgent = "docsync/readyz"
	defaultMetricsEnabled     = true
	defaultMetricsNamespace   = "docsync"
	defaultConfigEnvVar       = "DOCSYNC_CONFIG"

	envPort             = "PORT"
	envShutdownTimeout  = "SHUTDOWN_TIMEOUT_MS"
	envGitSHA           = "GIT_SHA"
	envWebhookSecret    = "WEBHOOK_SECRET"
	envAppID            = "APP_ID"
	envPrivateKey       = "PRIVATE_KEY"
	envPrivateKeyPath   = "PRIVATE_KEY_PATH"
	envGitHubAPIURL     = "GITHUB_API_URL"
	envGeminiAPIKey     = "GEMINI_API_KEY"
	envGeminiAPIURL     = "GEMINI_API_URL"
	envModels           = "DOCSYNC_MODELS"
	envMaxAttempts      = "DOCSYNC_MAX_ATTEMPTS"
	envRetryBaseDelay   = "DOCSYNC_RETRY_BASE_DELAY_MS"
	envPrimaryBranch    = "DOCSYNC_PRIMARY_BRANCH"
	envCooldown         = "DOCSYNC_COOLDOWN_MS"
	envWorkers          = "DOCSYNC_WORKERS"
	envMetricsEnabled   = "METRICS_ENABLED"
	envReadinessTimeout = "READINESS_TIMEOUT_MS"
)

// DefaultModels is the generation candidate order used when none is configured.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

// Config captures runtime configuration for the docsync service.
type Config struct {
	Version    string           `yaml:"version"`
	HTTP       HTTPConfig       `yaml:"http"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	GitHub     GitHubConfig     `yaml:"github"`
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// HTTPConfig configures listener behaviour.
type HTTPConfig struct {
	Port            int      `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" validate:"gt=0"`
}

// WebhookConfig configures the push-event endpoint.
type WebhookConfig struct {
	Path            string `yaml:"path" validate:"required,startswith=/"`
	Secret          string `yaml:"secret" validate:"required"`
	SignatureHeader string `yaml:"signatureHeader" validate:"required"`
}

// GitHubConfig identifies the GitHub App and API endpoint.
type GitHubConfig struct {
	APIURL         string   `yaml:"apiURL" validate:"required,url"`
	AppID          int64    `yaml:"appID" validate:"gt=0"`
	PrivateKey     string   `yaml:"privateKey"`
	PrivateKeyPath string   `yaml:"privateKeyPath"`
	Timeout        Duration `yaml:"timeout" validate:"gt=0"`
}

// GenerationConfig configures the text generation backend.
type GenerationConfig struct {
	APIURL      string   `yaml:"apiURL" validate:"required,url"`
	APIKey      string   `yaml:"apiKey" validate:"required"`
	Models      []string `yaml:"models" validate:"min=1,dive,required"`
	MaxAttempts int      `yaml:"maxAttempts" validate:"min=1"`
	BaseDelay   Duration `yaml:"baseDelay" validate:"gt=0"`
	Timeout     Duration `yaml:"timeout" validate:"gt=0"`
}

// PipelineConfig controls admission and per-file processing.
type PipelineConfig struct {
	PrimaryBranch  string   `yaml:"primaryBranch" validate:"required"`
	Cooldown       Duration `yaml:"cooldown" validate:"gte=0"`
	Workers        int      `yaml:"workers" validate:"min=1,max=16"`
	RepoConfigPath string   `yaml:"repoConfigPath" validate:"required"`
}

// ReadinessConfig controls upstream probing on /readyz.
type ReadinessConfig struct {
	Timeout   Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent string   `yaml:"userAgent"`
}

// MetricsConfig toggles metrics exposure.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Version: os.Getenv(envGitSHA),
		HTTP: HTTPConfig{
			Port:            defaultPort,
			ShutdownTimeout: DurationFrom(defaultShutdownTimeout),
			MaxBodyBytes:    defaultMaxBodyBytes,
		},
		Webhook: WebhookConfig{
			Path:            defaultWebhookPath,
			SignatureHeader: defaultSignatureHeader,
		},
		GitHub: GitHubConfig{
			APIURL:  defaultGitHubAPIURL,
			Timeout: DurationFrom(defaultGitHubTimeout),
		},
		Generation: GenerationConfig{
			APIURL:      defaultGenerationAPIURL,
			Models:      append([]string(nil), DefaultModels...),
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   DurationFrom(defaultRetryBaseDelay),
			Timeout:     DurationFrom(defaultGenerationTimeout),
		},
		Pipeline: PipelineConfig{
			PrimaryBranch:  defaultPrimaryBranch,
			Cooldown:       DurationFrom(defaultCooldown),
			Workers:        defaultWorkers,
			RepoConfigPath: defaultRepoConfigPath,
		},
		Readiness: ReadinessConfig{
			Timeout:   DurationFrom(defaultReadinessTimeout),
			UserAgent: defaultReadinessUserAgent,
		},
		Metrics: MetricsConfig{
			Enabled:   defaultMetricsEnabled,
			Namespace: defaultMetricsNamespace,
		},
	}
}

// Option customises the load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	paths     []string
	lookupEnv func(string) (string, bool)
}

// WithPath adds a YAML config path to attempt loading.
func WithPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) != "" {
			o.paths = append(o.paths, path)
		}
	}
}

// WithLookupEnv overrides the environment lookup function (useful for tests).
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookupEnv = fn
	}
}

// Load builds a Config from defaults, YAML files, and environment overrides (in that order).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if envPath, ok := options.lookupEnv(defaultConfigEnvVar); ok && strings.TrimSpace(envPath) != "" {
		options.paths = append([]string{strings.TrimSpace(envPath)}, options.paths...)
	}

	cfg := Default()

	for _, path := range options.paths {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, options.lookupEnv); err != nil {
		return cfg, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		val, ok := lookup(key)
		val = strings.TrimSpace(val)
		return val, ok && val != ""
	}

	if val, ok := get(envPort); ok {
		port, err := strconv.Atoi(val)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid %s value: %s", envPort, val)
		}
		cfg.HTTP.Port = port
	}

	if val, ok := get(envShutdownTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envShutdownTimeout, err)
		}
		cfg.HTTP.ShutdownTimeout = DurationFrom(timeout)
	}

	if val, ok := get(envGitSHA); ok {
		cfg.Version = val
	}

	if val, ok := get(envWebhookSecret); ok {
		cfg.Webhook.Secret = val
	}

	if val, ok := get(envAppID); ok {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid %s value: %s", envAppID, val)
		}
		cfg.GitHub.AppID = id
	}

	if val, ok := get(envPrivateKey); ok {
		cfg.GitHub.PrivateKey = val
	}

	if val, ok := get(envPrivateKeyPath); ok {
		cfg.GitHub.PrivateKeyPath = val
	}

	if val, ok := get(envGitHubAPIURL); ok {
		cfg.GitHub.APIURL = val
	}

	if val, ok := get(envGeminiAPIKey); ok {
		cfg.Generation.APIKey = val
	}

	if val, ok := get(envGeminiAPIURL); ok {
		cfg.Generation.APIURL = val
	}

	if val, ok := get(envModels); ok {
		cfg.Generation.Models = splitAndTrim(val)
	}

	if val, ok := get(envMaxAttempts); ok {
		attempts, err := strconv.Atoi(val)
		if err != nil || attempts <= 0 {
			return fmt.Errorf("invalid %s value: %s", envMaxAttempts, val)
		}
		cfg.Generation.MaxAttempts = attempts
	}

	if val, ok := get(envRetryBaseDelay); ok {
		delay, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envRetryBaseDelay, err)
		}
		cfg.Generation.BaseDelay = DurationFrom(delay)
	}

	if val, ok := get(envPrimaryBranch); ok {
		cfg.Pipeline.PrimaryBranch = val
	}

	if val, ok := get(envCooldown); ok {
		ms, err := strconv.Atoi(val)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid %s value: %s", envCooldown, val)
		}
		cfg.Pipeline.Cooldown = DurationFrom(time.Duration(ms) * time.Millisecond)
	}

	if val, ok := get(envWorkers); ok {
		workers, err := strconv.Atoi(val)
		if err != nil || workers <= 0 {
			return fmt.Errorf("invalid %s value: %s", envWorkers, val)
		}
		cfg.Pipeline.Workers = workers
	}

	if val, ok := get(envReadinessTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envReadinessTimeout, err)
		}
		cfg.Readiness.Timeout = DurationFrom(timeout)
	}

	if val, ok := get(envMetricsEnabled); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envMetricsEnabled, err)
		}
		cfg.Metrics.Enabled = enabled
	}

	return nil
}

// normalize fills in defaults that may be missing after YAML/env overrides.
func (cfg *Config) normalize() {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultPort
	}
	if cfg.HTTP.ShutdownTimeout.AsDuration() <= 0 {
		cfg.HTTP.ShutdownTimeout = DurationFrom(defaultShutdownTimeout)
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	cfg.Webhook.Path = ensureLeadingSlash(strings.TrimSpace(cfg.Webhook.Path))
	if cfg.Webhook.Path == "/" {
		cfg.Webhook.Path = defaultWebhookPath
	}
	if strings.TrimSpace(cfg.Webhook.SignatureHeader) == "" {
		cfg.Webhook.SignatureHeader = defaultSignatureHeader
	}

	cfg.GitHub.APIURL = strings.TrimSuffix(strings.TrimSpace(cfg.GitHub.APIURL), "/")
	// Keys passed through env files often carry literal \n sequences.
	cfg.GitHub.PrivateKey = strings.ReplaceAll(cfg.GitHub.PrivateKey, `\n`, "\n")
	if cfg.GitHub.Timeout.AsDuration() <= 0 {
		cfg.GitHub.Timeout = DurationFrom(defaultGitHubTimeout)
	}

	cfg.Generation.APIURL = strings.TrimSuffix(strings.TrimSpace(cfg.Generation.APIURL), "/")
	models := make([]string, 0, len(cfg.Generation.Models))
	for _, m := range cfg.Generation.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	cfg.Generation.Models = models
	if cfg.Generation.MaxAttempts <= 0 {
		cfg.Generation.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Generation.BaseDelay.AsDuration() <= 0 {
		cfg.Generation.BaseDelay = DurationFrom(defaultRetryBaseDelay)
	}
	if cfg.Generation.Timeout.AsDuration() <= 0 {
		cfg.Generation.Timeout = DurationFrom(defaultGenerationTimeout)
	}

	cfg.Pipeline.PrimaryBranch = strings.TrimPrefix(strings.TrimSpace(cfg.Pipeline.PrimaryBranch), "refs/heads/")
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = defaultWorkers
	}
	if strings.TrimSpace(cfg.Pipeline.RepoConfigPath) == "" {
		cfg.Pipeline.RepoConfigPath = defaultRepoConfigPath
	}

	if cfg.Readiness.Timeout.AsDuration() <= 0 {
		cfg.Readiness.Timeout = DurationFrom(defaultReadinessTimeout)
	}
	if strings.TrimSpace(cfg.Readiness.UserAgent) == "" {
		cfg.Readiness.UserAgent = defaultReadinessUserAgent
	}
}

var (
	validatorOnce     sync.Once
	validatorInstance *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New()
	})
	return validatorInstance
}

// Validate performs semantic validation on the configuration.
func (cfg Config) Validate() error {
	var errs []error

	if err := getValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fmt.Errorf("%s failed %q validation", fe.Namespace(), fe.Tag()))
		}
	}

	if strings.TrimSpace(cfg.GitHub.PrivateKey) == "" && strings.TrimSpace(cfg.GitHub.PrivateKeyPath) == "" {
		errs = append(errs, errors.New("github.privateKey or github.privateKeyPath is required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// PrivateKeyPEM returns the GitHub App private key, reading it from disk when
// only a path is configured.
func (cfg Config) PrivateKeyPEM() ([]byte, error) {
	if key := strings.TrimSpace(cfg.GitHub.PrivateKey); key != "" {
		return []byte(key), nil
	}
	if path := strings.TrimSpace(cfg.GitHub.PrivateKeyPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("github private key not configured")
}

// Redacted returns a copy with secrets masked, for display.
func (cfg Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out := cfg
	out.Webhook.Secret = mask(cfg.Webhook.Secret)
	out.GitHub.PrivateKey = mask(cfg.GitHub.PrivateKey)
	out.Generation.APIKey = mask(cfg.Generation.APIKey)
	out.Generation.Models = append([]string(nil), cfg.Generation.Models...)
	return out
}

func parsePositiveDurationMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func splitAndTrim(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func ensureLeadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
