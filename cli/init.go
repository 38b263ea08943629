package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyo-tom/ai-embedding-udf/config"
)

var (
	initBaseURL        string
	initModel          string
	initBackend        string
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize aiudf in the current directory",
	Long: `Initialize aiudf by creating a .aiudf directory with configuration.

This command will:
- Create .aiudf/config.yaml with default settings
- Prompt for the provider endpoint and embedding model
- Prompt for a vector store backend (none, postgres, or qdrant)`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "Provider base URL (OpenAI-compatible)")
	initCmd.Flags().StringVarP(&initModel, "model", "m", "", "Embedding model name")
	initCmd.Flags().StringVarP(&initBackend, "backend", "b", "", "Vector store backend (none, postgres, or qdrant)")
	initCmd.Flags().BoolVar(&initNonInteractive, "yes", false, "Use defaults without prompting")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	if config.Exists(cwd) {
		fmt.Println("aiudf is already initialized in this directory.")
		fmt.Printf("Configuration: %s\n", config.GetConfigPath(cwd))
		return nil
	}

	cfg := config.DefaultConfig()

	if initBaseURL != "" {
		cfg.Provider.BaseURL = initBaseURL
	}
	if initModel != "" {
		cfg.Embedder.Model = initModel
		cfg.Provider.DefaultModel = initModel
		cfg.Provider.SupportedModels = []string{initModel}
	}
	if initBackend != "" {
		cfg.Store.Backend = initBackend
	}

	if !initNonInteractive {
		reader := bufio.NewReader(os.Stdin)

		if initBaseURL == "" {
			fmt.Printf("Provider base URL [%s]: ", cfg.Provider.BaseURL)
			input, _ := reader.ReadString('\n')
			if input = strings.TrimSpace(input); input != "" {
				cfg.Provider.BaseURL = input
			}
		}

		if initModel == "" {
			fmt.Printf("Embedding model [%s]: ", cfg.Embedder.Model)
			input, _ := reader.ReadString('\n')
			if input = strings.TrimSpace(input); input != "" {
				cfg.Embedder.Model = input
				cfg.Provider.DefaultModel = input
				cfg.Provider.SupportedModels = []string{input}
			}
		}

		if initBackend == "" {
			fmt.Println("\nSelect vector store backend:")
			fmt.Println("  1) none (write embeddings as JSON lines)")
			fmt.Println("  2) postgres (pgvector)")
			fmt.Println("  3) qdrant")
			fmt.Print("Choice [1]: ")

			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(input)

			switch input {
			case "2", "postgres":
				cfg.Store.Backend = "postgres"
				fmt.Print("PostgreSQL DSN: ")
				dsn, _ := reader.ReadString('\n')
				cfg.Store.Postgres.DSN = strings.TrimSpace(dsn)
			case "3", "qdrant":
				cfg.Store.Backend = "qdrant"
				fmt.Print("Qdrant endpoint [http://localhost:6333]: ")
				endpoint, _ := reader.ReadString('\n')
				endpoint = strings.TrimSpace(endpoint)
				if endpoint == "" {
					endpoint = "http://localhost:6333"
				}
				cfg.Store.Qdrant.Endpoint = endpoint

				fmt.Print("Collection name [documents]: ")
				collection, _ := reader.ReadString('\n')
				collection = strings.TrimSpace(collection)
				if collection == "" {
					collection = "documents"
				}
				cfg.Store.Qdrant.Collection = collection

				fmt.Print("API key (optional, for Qdrant Cloud): ")
				apiKey, _ := reader.ReadString('\n')
				cfg.Store.Qdrant.APIKey = strings.TrimSpace(apiKey)
			default:
				cfg.Store.Backend = "none"
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Save(cwd); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("\nCreated configuration at %s\n", config.GetConfigPath(cwd))
	fmt.Println("\naiudf initialized successfully!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Embed documents: aiudf embed file.txt")
	fmt.Println("  2. Parse documents: aiudf parse /oss/path/doc.pdf --output-dir /oss/path/output")

	if cfg.Provider.APIKey == "" {
		fmt.Println("\nSet AIUDF_API_KEY in your environment if the provider requires authentication.")
	}

	return nil
}
