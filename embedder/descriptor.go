package embedder

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kyo-tom/ai-embedding-udf/retry"
)

const (
	// defaultMaxBatchTokens is the official API request limit, used
	// when the provider configuration does not supply its own.
	defaultMaxBatchTokens = 300_000

	embedRequestTimeout = 30 * time.Second
)

// Descriptor is the serializable configuration for an embedding
// client. It holds no network handles, so it can be stored in a
// project config file or shipped across process boundaries;
// Instantiate builds the live client from it.
type Descriptor struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions,omitempty"` // 0 = model default
	MaxBatchTokens int    `yaml:"max_batch_tokens,omitempty"`

	RetryStrategy   string  `yaml:"retry_strategy,omitempty"`
	MaxRetries      int     `yaml:"max_retries"`
	InitialDelayMs  int     `yaml:"initial_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          bool    `yaml:"jitter"`
	ErrorHandling   string  `yaml:"error_handling,omitempty"`
}

// NewDescriptor returns a descriptor with the default retry and
// error-handling configuration filled in.
func NewDescriptor(provider, baseURL, apiKey, model string) Descriptor {
	cfg := retry.DefaultConfig()
	return Descriptor{
		Provider:        provider,
		BaseURL:         baseURL,
		APIKey:          apiKey,
		Model:           model,
		MaxBatchTokens:  defaultMaxBatchTokens,
		RetryStrategy:   string(retry.ExponentialBackoffLimited),
		MaxRetries:      cfg.MaxRetries,
		InitialDelayMs:  int(cfg.InitialDelay / time.Millisecond),
		MaxDelayMs:      int(cfg.MaxDelay / time.Millisecond),
		ExponentialBase: cfg.ExponentialBase,
		Jitter:          cfg.Jitter,
		ErrorHandling:   string(FailFast),
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

// Validate checks the descriptor eagerly: unknown model, dimensions
// override on a model that does not support it, backoff invariants and
// strategy variants all fail here, never during Embed.
func (d Descriptor) Validate() error {
	if d.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	profile, err := Profile(d.Model)
	if err != nil {
		return err
	}
	if d.Dimensions < 0 {
		return fmt.Errorf("dimensions must be non-negative, got %d", d.Dimensions)
	}
	if d.Dimensions > 0 && !profile.SupportsCustomDimensions {
		return fmt.Errorf("model %q does not support custom dimensions", d.Model)
	}
	if d.MaxBatchTokens < 0 {
		return fmt.Errorf("max_batch_tokens must be non-negative, got %d", d.MaxBatchTokens)
	}
	if _, err := d.policy(); err != nil {
		return err
	}
	if _, err := ParseErrorHandling(d.ErrorHandling); err != nil {
		return err
	}
	return nil
}

// EmbeddingDimensions returns the vector size the client will produce:
// the override when set, otherwise the model's default.
func (d Descriptor) EmbeddingDimensions() (int, error) {
	if d.Dimensions > 0 {
		return d.Dimensions, nil
	}
	profile, err := Profile(d.Model)
	if err != nil {
		return 0, err
	}
	return profile.Dimensions, nil
}

// Instantiate validates the descriptor and builds the live client.
func (d Descriptor) Instantiate() (*Client, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	profile, _ := Profile(d.Model)
	policy, _ := d.policy()
	handling, _ := ParseErrorHandling(d.ErrorHandling)

	dimensions := profile.Dimensions
	if d.Dimensions > 0 {
		dimensions = d.Dimensions
	}
	maxBatchTokens := d.MaxBatchTokens
	if maxBatchTokens == 0 {
		maxBatchTokens = defaultMaxBatchTokens
	}

	log.Printf("embedder: model=%s max_input_tokens=%d max_batch_tokens=%d retry_strategy=%s error_handling=%s",
		d.Model, profile.MaxInputTokens, maxBatchTokens, policy.Strategy, handling)

	return &Client{
		baseURL:           strings.TrimRight(d.BaseURL, "/"),
		apiKey:            d.APIKey,
		model:             d.Model,
		dimensions:        dimensions,
		requestDimensions: d.Dimensions,
		maxInputTokens:    profile.MaxInputTokens,
		maxBatchTokens:    maxBatchTokens,
		policy:            policy,
		errorHandling:     handling,
		httpClient: &http.Client{
			Timeout: embedRequestTimeout,
		},
	}, nil
}
