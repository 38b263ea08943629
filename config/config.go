// Package config loads and saves the project configuration file and
// turns its sections into the serializable client descriptors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kyo-tom/ai-embedding-udf/embedder"
	"github.com/kyo-tom/ai-embedding-udf/parser"
	"github.com/kyo-tom/ai-embedding-udf/retry"
)

const (
	ConfigDir      = ".aiudf"
	ConfigFileName = "config.yaml"
)

type Config struct {
	Version  int            `yaml:"version"`
	Provider ProviderConfig `yaml:"provider"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Parser   ParserConfig   `yaml:"parser"`
	Store    StoreConfig    `yaml:"store"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ProviderConfig holds the API-level properties of one endpoint:
// where it lives, how to authenticate, and its per-request token
// budget. These are endpoint limits, distinct from model limits.
type ProviderConfig struct {
	Name            string   `yaml:"name"`
	BaseURL         string   `yaml:"base_url"`
	APIKey          string   `yaml:"api_key,omitempty"`
	MaxBatchTokens  int      `yaml:"max_batch_tokens,omitempty"`
	DefaultModel    string   `yaml:"default_model,omitempty"`
	SupportedModels []string `yaml:"supported_models,omitempty"`
}

// RetryConfig is the yaml shape of a retry policy, shared by the
// embedder and parser sections.
type RetryConfig struct {
	Strategy        string  `yaml:"strategy,omitempty"`
	MaxRetries      int     `yaml:"max_retries"`
	InitialDelayMs  int     `yaml:"initial_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          bool    `yaml:"jitter"`
}

func defaultRetryConfig() RetryConfig {
	cfg := retry.DefaultConfig()
	return RetryConfig{
		Strategy:        string(retry.ExponentialBackoffLimited),
		MaxRetries:      cfg.MaxRetries,
		InitialDelayMs:  int(cfg.InitialDelay / time.Millisecond),
		MaxDelayMs:      int(cfg.MaxDelay / time.Millisecond),
		ExponentialBase: cfg.ExponentialBase,
		Jitter:          cfg.Jitter,
	}
}

type EmbedderConfig struct {
	Model         string      `yaml:"model"`
	Dimensions    int         `yaml:"dimensions,omitempty"`
	Retry         RetryConfig `yaml:"retry"`
	ErrorHandling string      `yaml:"error_handling,omitempty"`
}

type ParserConfig struct {
	// BaseURL overrides the provider endpoint when the parsing
	// service runs on a different host.
	BaseURL             string         `yaml:"base_url,omitempty"`
	DocumentType        string         `yaml:"document_type,omitempty"`
	ParserType          string         `yaml:"parser_type,omitempty"`
	ParserMode          string         `yaml:"parser_mode,omitempty"`
	CustomOptions       map[string]any `yaml:"custom_options,omitempty"`
	PollIntervalSeconds int            `yaml:"poll_interval_seconds"`
	PollTimeoutSeconds  int            `yaml:"poll_timeout_seconds"`
	Retry               RetryConfig    `yaml:"retry"`
	ErrorHandling       string         `yaml:"error_handling,omitempty"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // none | postgres | qdrant
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type QdrantConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
}

// WatchConfig drives the watch command: which local documents to pick
// up and how their paths map onto the object-storage layout the
// parsing service reads from.
type WatchConfig struct {
	Extension         string `yaml:"extension"`           // documents to submit, e.g. ".pdf"
	SourcePrefix      string `yaml:"source_prefix"`       // OSS prefix the local dir mirrors
	OutputPrefix      string `yaml:"output_prefix"`       // OSS prefix for parsed output
	DebounceMs        int    `yaml:"debounce_ms"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Provider: ProviderConfig{
			Name:            "aiworks",
			BaseURL:         "http://localhost:9997/v1",
			MaxBatchTokens:  300_000,
			DefaultModel:    "conan-embedding-v1",
			SupportedModels: []string{"conan-embedding-v1"},
		},
		Embedder: EmbedderConfig{
			Model: "conan-embedding-v1",
			Retry: defaultRetryConfig(),
		},
		Parser: ParserConfig{
			BaseURL:             "http://localhost:8000",
			DocumentType:        "pdf",
			ParserType:          "mineru",
			ParserMode:          "pipeline",
			PollIntervalSeconds: 2,
			PollTimeoutSeconds:  300,
			Retry:               defaultRetryConfig(),
		},
		Store: StoreConfig{
			Backend: "none",
		},
		Watch: WatchConfig{
			Extension:         ".pdf",
			SourcePrefix:      "/documents",
			OutputPrefix:      "/documents/output",
			DebounceMs:        500,
			MaxConcurrentJobs: 4,
		},
	}
}

func GetConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDir)
}

func GetConfigPath(projectRoot string) string {
	return filepath.Join(GetConfigDir(projectRoot), ConfigFileName)
}

func Load(projectRoot string) (*Config, error) {
	data, err := os.ReadFile(GetConfigPath(projectRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in missing values so older config files keep
// working when new fields appear.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Provider.MaxBatchTokens == 0 {
		c.Provider.MaxBatchTokens = defaults.Provider.MaxBatchTokens
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = c.Provider.DefaultModel
	}
	if c.Parser.PollIntervalSeconds == 0 {
		c.Parser.PollIntervalSeconds = defaults.Parser.PollIntervalSeconds
	}
	if c.Parser.PollTimeoutSeconds == 0 {
		c.Parser.PollTimeoutSeconds = defaults.Parser.PollTimeoutSeconds
	}
	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Store.Backend == "qdrant" && c.Store.Qdrant.Port <= 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Watch.Extension == "" {
		c.Watch.Extension = defaults.Watch.Extension
	}
	if c.Watch.DebounceMs == 0 {
		c.Watch.DebounceMs = defaults.Watch.DebounceMs
	}
	if c.Watch.MaxConcurrentJobs == 0 {
		c.Watch.MaxConcurrentJobs = defaults.Watch.MaxConcurrentJobs
	}

	applyRetryDefaults(&c.Embedder.Retry)
	applyRetryDefaults(&c.Parser.Retry)
}

func applyRetryDefaults(r *RetryConfig) {
	defaults := defaultRetryConfig()
	if r.Strategy == "" && r.MaxRetries == 0 && r.InitialDelayMs == 0 {
		*r = defaults
		return
	}
	if r.ExponentialBase == 0 {
		r.ExponentialBase = defaults.ExponentialBase
	}
	if r.MaxDelayMs == 0 {
		r.MaxDelayMs = defaults.MaxDelayMs
	}
}

// Validate cross-checks the configuration eagerly: the selected model
// must be supported by the provider, and both descriptors must pass
// their own validation.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url must not be empty")
	}
	if len(c.Provider.SupportedModels) > 0 && !slices.Contains(c.Provider.SupportedModels, c.Embedder.Model) {
		return fmt.Errorf("model %q is not supported by provider %q (supported: %v)",
			c.Embedder.Model, c.Provider.Name, c.Provider.SupportedModels)
	}
	if err := c.EmbedderDescriptor().Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.ParserDescriptor().Validate(); err != nil {
		return fmt.Errorf("parser: %w", err)
	}
	return nil
}

// EmbedderDescriptor assembles the embedding client descriptor from
// the provider and embedder sections.
func (c *Config) EmbedderDescriptor() embedder.Descriptor {
	d := embedder.NewDescriptor(c.Provider.Name, c.Provider.BaseURL, c.Provider.APIKey, c.Embedder.Model)
	d.Dimensions = c.Embedder.Dimensions
	d.MaxBatchTokens = c.Provider.MaxBatchTokens
	d.ErrorHandling = c.Embedder.ErrorHandling
	d.RetryStrategy = c.Embedder.Retry.Strategy
	d.MaxRetries = c.Embedder.Retry.MaxRetries
	d.InitialDelayMs = c.Embedder.Retry.InitialDelayMs
	d.MaxDelayMs = c.Embedder.Retry.MaxDelayMs
	d.ExponentialBase = c.Embedder.Retry.ExponentialBase
	d.Jitter = c.Embedder.Retry.Jitter
	return d
}

// ParserDescriptor assembles the parse client descriptor from the
// provider and parser sections.
func (c *Config) ParserDescriptor() parser.Descriptor {
	baseURL := c.Parser.BaseURL
	if baseURL == "" {
		baseURL = c.Provider.BaseURL
	}
	d := parser.NewDescriptor(c.Provider.Name, baseURL)
	if c.Parser.DocumentType != "" {
		d.DocumentType = c.Parser.DocumentType
	}
	if c.Parser.ParserType != "" {
		d.ParserType = c.Parser.ParserType
	}
	if c.Parser.ParserMode != "" {
		d.ParserMode = c.Parser.ParserMode
	}
	d.CustomOptions = c.Parser.CustomOptions
	d.PollIntervalSeconds = c.Parser.PollIntervalSeconds
	d.PollTimeoutSeconds = c.Parser.PollTimeoutSeconds
	d.ErrorHandling = c.Parser.ErrorHandling
	d.RetryStrategy = c.Parser.Retry.Strategy
	d.MaxRetries = c.Parser.Retry.MaxRetries
	d.InitialDelayMs = c.Parser.Retry.InitialDelayMs
	d.MaxDelayMs = c.Parser.Retry.MaxDelayMs
	d.ExponentialBase = c.Parser.Retry.ExponentialBase
	d.Jitter = c.Parser.Retry.Jitter
	return d
}

func (c *Config) Save(projectRoot string) error {
	configDir := GetConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigPath(projectRoot), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func Exists(projectRoot string) bool {
	_, err := os.Stat(GetConfigPath(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from the working directory until it finds
// an initialized project.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not initialized (run 'aiudf init' first)")
		}
		dir = parent
	}
}
