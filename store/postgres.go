package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func NewPostgresStore(ctx context.Context, dsn string, vectorDimensions int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{
		pool:       pool,
		dimensions: vectorDimensions,
	}

	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS document_embeddings (
			source_path TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			vector vector(1792),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_embeddings_model ON document_embeddings(model)`,
		buildEnsureVectorSQL(s.dimensions),
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embeddings []DocumentEmbedding) error {
	batch := &pgx.Batch{}

	for _, emb := range embeddings {
		vec := pgvector.NewVector(emb.Vector)
		batch.Queue(
			`INSERT INTO document_embeddings (source_path, model, vector, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (source_path) DO UPDATE SET
				model = EXCLUDED.model,
				vector = EXCLUDED.vector,
				created_at = EXCLUDED.created_at`,
			emb.SourcePath, emb.Model, vec, emb.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range embeddings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save embedding: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) GetEmbedding(ctx context.Context, sourcePath string) (*DocumentEmbedding, error) {
	var emb DocumentEmbedding
	var vec pgvector.Vector
	var createdAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT source_path, model, vector, created_at FROM document_embeddings WHERE source_path = $1`,
		sourcePath,
	).Scan(&emb.SourcePath, &emb.Model, &vec, &createdAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	emb.Vector = vec.Slice()
	emb.CreatedAt = createdAt
	return &emb, nil
}

func (s *PostgresStore) DeleteEmbedding(ctx context.Context, sourcePath string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM document_embeddings WHERE source_path = $1`,
		sourcePath,
	)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_path FROM document_embeddings ORDER BY source_path`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// buildEnsureVectorSQL returns a SQL block that alters the
// "document_embeddings.vector" column only if its current dimension differs
// from the specified one.
func buildEnsureVectorSQL(dim int) string {
	return fmt.Sprintf(`
DO $$
DECLARE
	current_length int;
BEGIN
	SELECT atttypmod - 4
	INTO current_length
	FROM pg_attribute
	WHERE attrelid = 'document_embeddings'::regclass
	  AND attname = 'vector';

	IF current_length IS DISTINCT FROM %d THEN
		RAISE NOTICE 'Altering vector size from %% to %d', current_length;
		EXECUTE 'ALTER TABLE document_embeddings ALTER COLUMN vector TYPE vector(%d)';
	ELSE
		RAISE NOTICE 'Vector size already %d, skipping ALTER';
	END IF;
END$$;
`, dim, dim, dim, dim)
}
