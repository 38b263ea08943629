package store

import (
	"context"
	"time"
)

// DocumentEmbedding is a single document-level vector persisted by a backend.
type DocumentEmbedding struct {
	SourcePath string
	Model      string
	Vector     []float32
	CreatedAt  time.Time
}

// VectorStore persists document embeddings. Implementations are
// PostgresStore (pgvector) and QdrantStore.
type VectorStore interface {
	SaveEmbeddings(ctx context.Context, embeddings []DocumentEmbedding) error
	GetEmbedding(ctx context.Context, sourcePath string) (*DocumentEmbedding, error)
	DeleteEmbedding(ctx context.Context, sourcePath string) error
	ListDocuments(ctx context.Context) ([]string, error)
	Close() error
}
