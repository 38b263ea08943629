package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kyo-tom/ai-embedding-udf/retry"
)

func init() {
	// Small profiles so tests exercise chunking without megabyte inputs.
	RegisterModel("test-model-4d", ModelProfile{
		Dimensions:     4,
		MaxInputTokens: 10,
	})
}

// mockEmbedServer answers every request with one deterministic vector
// per input: [len(text), first byte, index in request, 0]. That makes
// both batch membership and result order observable from the outside.
func mockEmbedServer(t *testing.T, requestCount *int32, batchSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requestCount, 1)

		var req embedAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if batchSizes != nil {
			*batchSizes = append(*batchSizes, len(req.Input))
		}

		resp := embedAPIResponse{}
		resp.Data = make([]struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}, len(req.Input))
		for i, text := range req.Input {
			var first float32
			if len(text) > 0 {
				first = float32(text[0])
			}
			resp.Data[i].Embedding = []float32{float32(len(text)), first, float32(i), 0}
			resp.Data[i].Index = i
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Descriptor)) *Client {
	t.Helper()
	d := NewDescriptor("test", baseURL, "test-key", "test-model-4d")
	d.Jitter = false
	d.InitialDelayMs = 1
	d.MaxDelayMs = 5
	if mutate != nil {
		mutate(&d)
	}
	client, err := d.Instantiate()
	if err != nil {
		t.Fatalf("failed to instantiate client: %v", err)
	}
	return client
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"ab", 0},
		{"abc", 1},
		{strings.Repeat("x", 30), 10},
		{strings.Repeat("x", 31), 10},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars): expected %d, got %d", len(tt.text), tt.want, got)
		}
	}
}

func TestEmbed_SingleBatchPreservesOrder(t *testing.T) {
	var requests int32
	server := mockEmbedServer(t, &requests, nil)
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	// Each text is well under both limits, so one request covers all.
	texts := []string{"aaa", "bbbbbb", "ccccccccc"}
	result, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if atomic.LoadInt32(&requests) != 1 {
		t.Errorf("expected exactly 1 request, got %d", requests)
	}
	if len(result) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(result))
	}
	for i, text := range texts {
		if result[i][0] != float32(len(text)) || result[i][1] != float32(text[0]) {
			t.Errorf("vector %d does not match input %q: %v", i, text, result[i])
		}
	}
}

func TestEmbed_FlushesAtBatchTokenLimit(t *testing.T) {
	var requests int32
	var batchSizes []int
	server := mockEmbedServer(t, &requests, &batchSizes)
	defer server.Close()

	client := newTestClient(t, server.URL, func(d *Descriptor) {
		d.MaxBatchTokens = 25
	})

	// 30 chars = 10 estimated tokens per text. The third text would
	// bring the batch to the 25-token budget, forcing a flush.
	texts := []string{
		strings.Repeat("a", 30),
		strings.Repeat("b", 30),
		strings.Repeat("c", 30),
	}
	result, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if atomic.LoadInt32(&requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
	if batchSizes[0] != 2 || batchSizes[1] != 1 {
		t.Errorf("expected batch sizes [2 1], got %v", batchSizes)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(result))
	}
	for i, text := range texts {
		if result[i][1] != float32(text[0]) {
			t.Errorf("vector %d does not match input %q", i, text)
		}
	}
}

func TestEmbed_OversizedInputChunkedAndMerged(t *testing.T) {
	var requests int32
	var batchSizes []int
	server := mockEmbedServer(t, &requests, &batchSizes)
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	// test-model-4d allows 10 input tokens = 30 chars per chunk.
	// 100 chars is ~33 tokens, so it splits into 30+30+30+10.
	text := strings.Repeat("z", 100)
	result, err := client.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if atomic.LoadInt32(&requests) != 1 {
		t.Errorf("expected 1 request for all chunks, got %d", requests)
	}
	if batchSizes[0] != 4 {
		t.Errorf("expected 4 chunks in one request, got %d", batchSizes[0])
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 merged vector, got %d", len(result))
	}

	// The merged vector is L2-normalized.
	var norm float64
	for _, v := range result[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("expected unit-norm merged vector, got norm %v", math.Sqrt(norm))
	}
}

func TestEmbed_MixedRegimesPreserveOrder(t *testing.T) {
	var requests int32
	server := mockEmbedServer(t, &requests, nil)
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	small1 := "aaa"
	oversized := strings.Repeat("z", 100)
	small2 := "bbb"
	result, err := client.Embed(context.Background(), []string{small1, oversized, small2})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	// small1 flushed before the oversized input, the chunks in their
	// own call, small2 in the final flush.
	if atomic.LoadInt32(&requests) != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(result))
	}
	if result[0][1] != float32('a') {
		t.Errorf("position 0 does not hold the first input's vector")
	}
	if result[2][1] != float32('b') {
		t.Errorf("position 2 does not hold the last input's vector")
	}
}

func TestEmbed_ResortsByResponseIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Answer in reverse order; the client must re-sort by index.
		resp := embedAPIResponse{}
		resp.Data = make([]struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}, len(req.Input))
		for i := range req.Input {
			rev := len(req.Input) - 1 - i
			resp.Data[i].Embedding = []float32{float32(rev), 0, 0, 0}
			resp.Data[i].Index = rev
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	result, err := client.Embed(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range result {
		if result[i][0] != float32(i) {
			t.Errorf("position %d: expected vector for index %d, got %v", i, i, result[i])
		}
	}
}

func TestEmbed_ZeroVectorFallback(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, `{"error":{"message":"service down"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(d *Descriptor) {
		d.RetryStrategy = string(retry.NoRetry)
		d.ErrorHandling = string(ZeroVectorFallback)
	})

	result, err := client.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("expected fallback to swallow the failure, got %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(result))
	}
	for i, vec := range result {
		if len(vec) != client.Dimensions() {
			t.Errorf("vector %d: expected %d dimensions, got %d", i, client.Dimensions(), len(vec))
		}
		for j, v := range vec {
			if v != 0 {
				t.Fatalf("vector %d component %d: expected 0, got %v", i, j, v)
			}
		}
	}
}

func TestEmbed_FailFastPropagatesExhaustion(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(d *Descriptor) {
		d.MaxRetries = 2
	})

	_, err := client.Embed(context.Background(), []string{"one"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *retry.ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if atomic.LoadInt32(&requests) != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	var requests int32
	server := mockEmbedServer(t, &requests, nil)
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	result, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no vectors, got %d", len(result))
	}
	if atomic.LoadInt32(&requests) != 0 {
		t.Errorf("expected no requests, got %d", requests)
	}
}

func TestEmbedRequest_LengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[1,2,3,4],"index":0}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(d *Descriptor) {
		d.RetryStrategy = string(retry.NoRetry)
	})

	_, err := client.Embed(context.Background(), []string{"one", "two"})
	if err == nil {
		t.Fatal("expected error on embedding count mismatch, got nil")
	}
	if !strings.Contains(err.Error(), "expected 2 embeddings") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		text string
		size int
		want []string
	}{
		{"abcdef", 3, []string{"abc", "def"}},
		{"abcdefg", 3, []string{"abc", "def", "g"}},
		{"ab", 3, []string{"ab"}},
	}
	for _, tt := range tests {
		got := chunkText(tt.text, tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("chunkText(%q, %d): expected %v, got %v", tt.text, tt.size, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("chunkText(%q, %d)[%d]: expected %q, got %q", tt.text, tt.size, i, tt.want[i], got[i])
			}
		}
	}
}

func TestMergeChunks_WeightedAverage(t *testing.T) {
	// Two chunks of equal length with orthogonal vectors merge into the
	// normalized midpoint.
	chunks := []string{"aaa", "bbb"}
	embeddings := [][]float32{
		{1, 0},
		{0, 1},
	}
	merged := mergeChunks(chunks, embeddings)
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(merged[0]-want)) > 1e-6 || math.Abs(float64(merged[1]-want)) > 1e-6 {
		t.Errorf("expected [%v %v], got %v", want, want, merged)
	}
}

func TestMergeChunks_ZeroVectors(t *testing.T) {
	// All-zero chunk embeddings (the fallback case) must not divide by
	// a zero norm.
	merged := mergeChunks([]string{"aaa", "b"}, [][]float32{{0, 0}, {0, 0}})
	for i, v := range merged {
		if v != 0 {
			t.Errorf("component %d: expected 0, got %v", i, v)
		}
	}
}
