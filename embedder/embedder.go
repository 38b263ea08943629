// Package embedder turns arbitrarily large ordered text collections
// into embedding vectors through a rate- and size-limited
// OpenAI-compatible endpoint. It batches adaptively under two limits
// (the model's per-input context window and the API's per-request
// token budget) while preserving input order end to end.
package embedder

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"

	"github.com/kyo-tom/ai-embedding-udf/retry"
)

// approxCharsPerToken is the fixed estimation ratio. No real tokenizer
// runs client-side; 3 chars/token is a conservative estimate that
// keeps batches under the API limits.
const approxCharsPerToken = 3

// Client embeds texts against one OpenAI-compatible endpoint. It holds
// no mutable state across Embed calls, so independent calls may run
// from separate goroutines; a single call processes its inputs
// strictly sequentially.
type Client struct {
	baseURL           string
	apiKey            string
	model             string
	dimensions        int // resolved vector size (override or model default)
	requestDimensions int // sent in requests only when overriding
	maxInputTokens    int // model limit, per input
	maxBatchTokens    int // API limit, per request
	policy            retry.Policy
	errorHandling     ErrorHandling
	httpClient        *http.Client
}

// Dimensions returns the vector size this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EstimateTokens estimates the token count of a text using the fixed
// chars-per-token ratio. Integer division, matching the batching
// arithmetic exactly.
func EstimateTokens(text string) int {
	return len(text) / approxCharsPerToken
}

// Embed converts texts into embedding vectors, one per input, in input
// order. Inputs accumulate into batches flushed when the API token
// budget would be reached; an input whose estimated tokens exceed the
// model's context window is chunked, embedded in one call, and merged
// into a single unit-norm vector. Under FailFast any exhausted batch
// call aborts the whole operation; under ZeroVectorFallback the failed
// sub-call's texts get zero vectors and processing continues.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))

	var batch []string
	batchTokens := 0
	chunkChars := c.maxInputTokens * approxCharsPerToken

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return err
		}
		embeddings = append(embeddings, vecs...)
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := EstimateTokens(text)

		switch {
		case tokens > c.maxInputTokens:
			// Flush the accumulator first so the merged vector lands
			// at this input's position.
			if err := flush(); err != nil {
				return nil, err
			}
			log.Printf("embedder: input of ~%d tokens exceeds model limit %d, chunking", tokens, c.maxInputTokens)
			chunks := chunkText(text, chunkChars)
			chunkVecs, err := c.embedBatch(ctx, chunks)
			if err != nil {
				return nil, err
			}
			embeddings = append(embeddings, mergeChunks(chunks, chunkVecs))

		case tokens+batchTokens >= c.maxBatchTokens:
			if err := flush(); err != nil {
				return nil, err
			}
			batch = append(batch, text)
			batchTokens = tokens

		default:
			batch = append(batch, text)
			batchTokens += tokens
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// embedBatch performs one logical batch call through the retry
// wrapper, applying the zero-vector fallback when retries run out and
// the client is configured for it.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := retry.Do(ctx, "embed batch", c.policy, func(ctx context.Context) ([][]float32, error) {
		return c.embedRequest(ctx, texts)
	})
	if err == nil {
		return vecs, nil
	}

	// Only an exhausted retry budget is eligible for the fallback;
	// context cancellation still propagates.
	var exhausted *retry.ExhaustedError
	if c.errorHandling == ZeroVectorFallback && errors.As(err, &exhausted) {
		log.Printf("embedder: retries exhausted, substituting zero vectors for %d texts", len(texts))
		fallback := make([][]float32, len(texts))
		for i := range fallback {
			fallback[i] = make([]float32, c.dimensions)
		}
		return fallback, nil
	}
	return nil, err
}

// chunkText splits a text into fixed-size byte chunks; the last chunk
// may be shorter.
func chunkText(text string, size int) []string {
	chunks := make([]string, 0, (len(text)+size-1)/size)
	for start := 0; start < len(text); start += size {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// mergeChunks averages chunk embeddings weighted by chunk length and
// L2-normalizes the result. Chunks only exist for inputs longer than
// the context window, so at least one weight is always positive; the
// zero-norm branch is reachable only through the zero-vector fallback,
// where the merged vector stays all zeros instead of dividing by zero.
func mergeChunks(chunks []string, embeddings [][]float32) []float32 {
	dim := 0
	for _, e := range embeddings {
		if len(e) > dim {
			dim = len(e)
		}
	}

	merged := make([]float64, dim)
	var totalWeight float64
	for i, embedding := range embeddings {
		weight := float64(len(chunks[i]))
		totalWeight += weight
		for j, v := range embedding {
			merged[j] += weight * float64(v)
		}
	}
	for j := range merged {
		merged[j] /= totalWeight
	}

	var norm float64
	for _, v := range merged {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	for j, v := range merged {
		if norm > 0 {
			out[j] = float32(v / norm)
		} else {
			out[j] = float32(v)
		}
	}
	return out
}
