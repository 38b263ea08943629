package embedder

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelProfile holds model-inherent properties. These do not depend on
// which API endpoint serves the model (official, Azure, self-hosted).
type ModelProfile struct {
	// Dimensions is the default embedding vector size.
	Dimensions int
	// MaxInputTokens is the per-input context window, fixed at
	// training time. Inputs estimated above it are chunked.
	MaxInputTokens int
	// SupportsCustomDimensions reports whether the model accepts a
	// dimensions override in the request.
	SupportsCustomDimensions bool
}

const defaultMaxInputTokens = 8191

var (
	modelsMu sync.RWMutex
	models   = map[string]ModelProfile{
		"text-embedding-ada-002": {
			Dimensions:               1536,
			MaxInputTokens:           defaultMaxInputTokens,
			SupportsCustomDimensions: false,
		},
		"text-embedding-3-small": {
			Dimensions:               1536,
			MaxInputTokens:           defaultMaxInputTokens,
			SupportsCustomDimensions: true,
		},
		"text-embedding-3-large": {
			Dimensions:               3072,
			MaxInputTokens:           defaultMaxInputTokens,
			SupportsCustomDimensions: true,
		},
		"conan-embedding-v1": {
			Dimensions:               1792,
			MaxInputTokens:           defaultMaxInputTokens,
			SupportsCustomDimensions: false,
		},
	}
)

// RegisterModel adds or replaces a model profile, for endpoints
// serving models outside the built-in set.
func RegisterModel(name string, profile ModelProfile) {
	if profile.MaxInputTokens <= 0 {
		profile.MaxInputTokens = defaultMaxInputTokens
	}
	modelsMu.Lock()
	models[name] = profile
	modelsMu.Unlock()
}

// Profile returns the profile for a model name. Unknown models are a
// configuration error carrying the supported set.
func Profile(name string) (ModelProfile, error) {
	modelsMu.RLock()
	profile, ok := models[name]
	modelsMu.RUnlock()
	if !ok {
		return ModelProfile{}, fmt.Errorf("%w: %q (supported models: %s; use RegisterModel to add custom models)",
			ErrUnknownModel, name, strings.Join(supportedModels(), ", "))
	}
	return profile, nil
}

func supportedModels() []string {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
