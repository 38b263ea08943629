package cli

import (
	"fmt"
	"os"

	"github.com/kyo-tom/ai-embedding-udf/config"
)

// loadProjectConfig finds the project root, loads and validates its
// configuration, and fills the API key from the environment when the
// config file leaves it out.
func loadProjectConfig() (*config.Config, string, error) {
	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("AIUDF_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, projectRoot, nil
}
