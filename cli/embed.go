package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kyo-tom/ai-embedding-udf/config"
	"github.com/kyo-tom/ai-embedding-udf/store"
)

var (
	embedOutput      string
	embedConcurrency int
)

var embedCmd = &cobra.Command{
	Use:   "embed <files...>",
	Short: "Embed text files into document vectors",
	Long: `Embed each file's contents into a single document vector.

Files larger than the model's input window are chunked and merged into
one length-weighted, normalized vector automatically. Each file is an
independent embedding call; files are processed concurrently up to
--concurrency.

Vectors are persisted to the configured vector store, or written as
JSON lines when the store backend is "none".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "JSON lines output file (default stdout)")
	embedCmd.Flags().IntVar(&embedConcurrency, "concurrency", 4, "Maximum concurrent embedding calls")
}

type embedRecord struct {
	SourcePath string    `json:"source_path"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector"`
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	client, err := cfg.EmbedderDescriptor().Instantiate()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	vectors := make([][]float32, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, file := range args {
		g.Go(func() error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			result, err := client.Embed(gctx, []string{string(content)})
			if err != nil {
				return fmt.Errorf("failed to embed %s: %w", file, err)
			}
			vectors[i] = result[0]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.Store.Backend == "none" {
		return writeEmbedRecords(args, vectors, cfg.Embedder.Model)
	}

	st, err := openStore(ctx, cfg, client.Dimensions())
	if err != nil {
		return err
	}
	defer st.Close()

	embeddings := make([]store.DocumentEmbedding, len(args))
	now := time.Now()
	for i, file := range args {
		embeddings[i] = store.DocumentEmbedding{
			SourcePath: file,
			Model:      cfg.Embedder.Model,
			Vector:     vectors[i],
			CreatedAt:  now,
		}
	}

	if err := st.SaveEmbeddings(ctx, embeddings); err != nil {
		return err
	}

	fmt.Printf("Embedded %d files into the %s store\n", len(args), cfg.Store.Backend)
	return nil
}

func writeEmbedRecords(files []string, vectors [][]float32, model string) error {
	out := os.Stdout
	if embedOutput != "" {
		f, err := os.Create(embedOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for i, file := range files {
		record := embedRecord{
			SourcePath: file,
			Model:      model,
			Dimensions: len(vectors[i]),
			Vector:     vectors[i],
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", file, err)
		}
	}

	return nil
}

func openStore(ctx context.Context, cfg *config.Config, dimensions int) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, dimensions)
	case "qdrant":
		collection := cfg.Store.Qdrant.Collection
		if collection == "" {
			collection = "documents"
		}
		return store.NewQdrantStore(ctx, cfg.Store.Qdrant.Endpoint, cfg.Store.Qdrant.Port,
			cfg.Store.Qdrant.UseTLS, collection, cfg.Store.Qdrant.APIKey, dimensions)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}
