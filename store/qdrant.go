package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	dimensions     int
}

func parseHost(endpoint string) string {
	host := strings.TrimPrefix(endpoint, "http://")
	host = strings.TrimPrefix(host, "https://")

	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}

	return host
}

func NewQdrantStore(ctx context.Context, endpoint string, port int, useTLS bool, collection, apiKey string, dimensions int) (*QdrantStore, error) {
	host := parseHost(endpoint)

	if port <= 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:         client,
		collectionName: collection,
		dimensions:     dimensions,
	}

	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		if s.dimensions <= 0 {
			return fmt.Errorf("dimensions must be positive, got: %d", s.dimensions)
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	return nil
}

func (s *QdrantStore) pointIDForPath(sourcePath string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(sourcePath))
}

func (s *QdrantStore) SaveEmbeddings(ctx context.Context, embeddings []DocumentEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(embeddings))
	for _, emb := range embeddings {
		payload, err := s.buildPayload(emb)
		if err != nil {
			return fmt.Errorf("failed to build payload: %w", err)
		}

		pointID := s.pointIDForPath(emb.SourcePath)

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID.String()),
			Vectors: qdrant.NewVectors(emb.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

func (s *QdrantStore) buildPayload(emb DocumentEmbedding) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value)

	sourcePathVal, err := qdrant.NewValue(emb.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_path value: %w", err)
	}

	modelVal, err := qdrant.NewValue(emb.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model value: %w", err)
	}

	createdAtVal, err := qdrant.NewValue(emb.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create created_at value: %w", err)
	}

	payload["source_path"] = sourcePathVal
	payload["model"] = modelVal
	payload["created_at"] = createdAtVal

	return payload, nil
}

func (s *QdrantStore) parsePayload(payload map[string]*qdrant.Value) *DocumentEmbedding {
	emb := &DocumentEmbedding{}
	if val, ok := payload["source_path"]; ok {
		emb.SourcePath = val.GetStringValue()
	}
	if val, ok := payload["model"]; ok {
		emb.Model = val.GetStringValue()
	}
	if val, ok := payload["created_at"]; ok {
		t, err := time.Parse(time.RFC3339, val.GetStringValue())
		if err == nil {
			emb.CreatedAt = t
		}
	}

	return emb
}

func (s *QdrantStore) GetEmbedding(ctx context.Context, sourcePath string) (*DocumentEmbedding, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("source_path", sourcePath),
		},
	}

	scrollResult, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collectionName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayloadInclude("source_path", "model", "created_at"),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	if len(scrollResult) == 0 {
		return nil, nil
	}

	point := scrollResult[0]
	emb := s.parsePayload(point.Payload)
	if point.Vectors != nil && point.Vectors.GetVector() != nil {
		if dense := point.Vectors.GetVector().GetDense(); dense != nil {
			emb.Vector = dense.GetData()
		}
	}

	return emb, nil
}

func (s *QdrantStore) DeleteEmbedding(ctx context.Context, sourcePath string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("source_path", sourcePath),
		},
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collectionName,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	return nil
}

func (s *QdrantStore) ListDocuments(ctx context.Context) ([]string, error) {
	scrollResult, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collectionName,
		Limit:          qdrant.PtrOf(uint32(10000)),
		WithPayload:    qdrant.NewWithPayloadInclude("source_path"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	pathsMap := make(map[string]bool)
	for _, point := range scrollResult {
		if val, ok := point.Payload["source_path"]; ok {
			pathsMap[val.GetStringValue()] = true
		}
	}

	paths := make([]string, 0, len(pathsMap))
	for path := range pathsMap {
		paths = append(paths, path)
	}

	return paths, nil
}

func (s *QdrantStore) Close() error {
	return nil
}
