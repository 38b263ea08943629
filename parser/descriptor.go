package parser

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kyo-tom/ai-embedding-udf/retry"
)

const (
	defaultDocumentType = "pdf"
	defaultParserType   = "mineru"
	defaultParserMode   = "pipeline"

	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 300 * time.Second

	// Per-attempt request timeouts. Submit allows slightly more than
	// the service's own 30s handler timeout.
	submitRequestTimeout = 35 * time.Second
	statusRequestTimeout = 10 * time.Second
)

// Descriptor is the serializable configuration for a parse client.
// Like the embedder descriptor it holds no network handles;
// Instantiate builds the live client.
type Descriptor struct {
	Provider      string         `yaml:"provider"`
	BaseURL       string         `yaml:"base_url"`
	DocumentType  string         `yaml:"document_type,omitempty"`
	ParserType    string         `yaml:"parser_type,omitempty"`
	ParserMode    string         `yaml:"parser_mode,omitempty"`
	CustomOptions map[string]any `yaml:"custom_options,omitempty"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds,omitempty"`
	PollTimeoutSeconds  int `yaml:"poll_timeout_seconds,omitempty"`

	RetryStrategy   string  `yaml:"retry_strategy,omitempty"`
	MaxRetries      int     `yaml:"max_retries"`
	InitialDelayMs  int     `yaml:"initial_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          bool    `yaml:"jitter"`
	ErrorHandling   string  `yaml:"error_handling,omitempty"`
}

// NewDescriptor returns a descriptor with parser, polling and retry
// defaults filled in.
func NewDescriptor(provider, baseURL string) Descriptor {
	cfg := retry.DefaultConfig()
	return Descriptor{
		Provider:            provider,
		BaseURL:             baseURL,
		DocumentType:        defaultDocumentType,
		ParserType:          defaultParserType,
		ParserMode:          defaultParserMode,
		PollIntervalSeconds: int(defaultPollInterval / time.Second),
		PollTimeoutSeconds:  int(defaultPollTimeout / time.Second),
		RetryStrategy:       string(retry.ExponentialBackoffLimited),
		MaxRetries:          cfg.MaxRetries,
		InitialDelayMs:      int(cfg.InitialDelay / time.Millisecond),
		MaxDelayMs:          int(cfg.MaxDelay / time.Millisecond),
		ExponentialBase:     cfg.ExponentialBase,
		Jitter:              cfg.Jitter,
		ErrorHandling:       string(FailFast),
	}
}

func (d Descriptor) policy() (retry.Policy, error) {
	strategy, err := retry.ParseStrategy(d.RetryStrategy)
	if err != nil {
		return retry.Policy{}, err
	}
	p := retry.Policy{
		Strategy: strategy,
		Backoff: retry.Config{
			InitialDelay:    time.Duration(d.InitialDelayMs) * time.Millisecond,
			MaxDelay:        time.Duration(d.MaxDelayMs) * time.Millisecond,
			ExponentialBase: d.ExponentialBase,
			Jitter:          d.Jitter,
			MaxRetries:      d.MaxRetries,
		},
	}
	if err := p.Backoff.Validate(); err != nil {
		return retry.Policy{}, err
	}
	return p, nil
}

// Validate checks the descriptor eagerly; polling and backoff
// parameter violations are configuration errors.
func (d Descriptor) Validate() error {
	if d.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if d.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", d.PollIntervalSeconds)
	}
	if d.PollTimeoutSeconds <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %d", d.PollTimeoutSeconds)
	}
	if d.PollTimeoutSeconds < d.PollIntervalSeconds {
		return fmt.Errorf("poll timeout (%ds) must be >= poll interval (%ds)",
			d.PollTimeoutSeconds, d.PollIntervalSeconds)
	}
	if _, err := d.policy(); err != nil {
		return err
	}
	if _, err := ParseErrorHandling(d.ErrorHandling); err != nil {
		return err
	}
	return nil
}

// Instantiate validates the descriptor and builds the live client.
func (d Descriptor) Instantiate() (*Client, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	policy, _ := d.policy()
	handling, _ := ParseErrorHandling(d.ErrorHandling)

	documentType := d.DocumentType
	if documentType == "" {
		documentType = defaultDocumentType
	}
	parserType := d.ParserType
	if parserType == "" {
		parserType = defaultParserType
	}
	parserMode := d.ParserMode
	if parserMode == "" {
		parserMode = defaultParserMode
	}
	customOptions := d.CustomOptions
	if customOptions == nil {
		customOptions = map[string]any{}
	}

	log.Printf("parser: base_url=%s parser_type=%s retry_strategy=%s error_handling=%s custom_options=%v",
		d.BaseURL, parserType, policy.Strategy, handling, Sanitize(customOptions))

	return &Client{
		baseURL:       strings.TrimRight(d.BaseURL, "/"),
		documentType:  documentType,
		parserType:    parserType,
		parserMode:    parserMode,
		customOptions: customOptions,
		pollInterval:  time.Duration(d.PollIntervalSeconds) * time.Second,
		pollTimeout:   time.Duration(d.PollTimeoutSeconds) * time.Second,
		policy:        policy,
		errorHandling: handling,
		httpClient:    &http.Client{},
		now:           time.Now,
	}, nil
}
