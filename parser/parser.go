// Package parser drives asynchronous document-parse jobs on a remote
// parsing service. A job is submitted per file, then polled until it
// reaches a terminal status; batches of files are processed strictly
// sequentially with per-file error isolation.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/kyo-tom/ai-embedding-udf/retry"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Client submits and polls parse jobs against one parsing service.
// Like the embedding client it holds no mutable state across calls;
// a single ParseFiles call never mutates the same job from more than
// one goroutine.
type Client struct {
	baseURL       string
	documentType  string
	parserType    string
	parserMode    string
	customOptions map[string]any
	pollInterval  time.Duration
	pollTimeout   time.Duration
	policy        retry.Policy
	errorHandling ErrorHandling
	httpClient    *http.Client

	now func() time.Time // injected in tests
}

// FileResult records the outcome for one failed input file.
type FileResult struct {
	SourcePath   string
	OutputPath   string
	JobID        string
	ErrorMessage string
}

// BatchResult accumulates per-file outcomes of a ParseFiles call.
// Every input file appears in exactly one of the two sequences, in
// input order.
type BatchResult struct {
	// Successful holds the output paths of parsed files.
	Successful []string
	// Failed holds the per-file failures recorded under
	// ContinueOnError.
	Failed []FileResult
}

// SuccessCount returns the number of files parsed successfully.
func (r *BatchResult) SuccessCount() int { return len(r.Successful) }

// FailedCount returns the number of files that failed.
func (r *BatchResult) FailedCount() int { return len(r.Failed) }

// TotalCount returns the number of input files accounted for.
func (r *BatchResult) TotalCount() int { return len(r.Successful) + len(r.Failed) }

type submitResponse struct {
	Completed      bool   `json:"completed"`
	JobID          string `json:"job_id"`
	ErrorMessage   string `json:"error_message"`
	MainOutputPath string `json:"main_output_path"`
}

type jobStatusResponse struct {
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message"`
	MainOutputPath string `json:"main_output_path"`
}

// ParseFile parses a single document: submit the job, then either take
// the immediate-completion path or poll the job id until it completes,
// fails, or the poll timeout elapses. Returns the output path of the
// parsed document.
func (c *Client) ParseFile(ctx context.Context, sourcePath, outputPath string) (string, error) {
	result, err := c.submitJob(ctx, sourcePath, outputPath)
	if err != nil {
		return "", err
	}

	if result.Completed {
		if result.ErrorMessage != "" {
			return "", &JobError{SourcePath: sourcePath, Message: result.ErrorMessage}
		}
		return result.MainOutputPath, nil
	}

	if result.JobID == "" {
		return "", fmt.Errorf("submit for %s: %w", sourcePath, ErrMissingJobID)
	}

	final, err := c.waitForCompletion(ctx, sourcePath, result.JobID)
	if err != nil {
		return "", err
	}
	return final.MainOutputPath, nil
}

// ParseFiles parses multiple documents in order, deriving each output
// path from the input filename with the extension replaced by .md.
// Under FailFast the first failure aborts the batch; under
// ContinueOnError it is recorded and the remaining files proceed.
func (c *Client) ParseFiles(ctx context.Context, files []string, outputDir string) (*BatchResult, error) {
	result := &BatchResult{}

	for _, sourcePath := range files {
		outputPath := path.Join(outputDir, outputName(sourcePath))

		parsed, err := c.ParseFile(ctx, sourcePath, outputPath)
		if err == nil {
			result.Successful = append(result.Successful, parsed)
			log.Printf("parser: parsed %s -> %s", sourcePath, parsed)
			continue
		}

		if c.errorHandling == FailFast {
			return nil, err
		}
		result.Failed = append(result.Failed, FileResult{
			SourcePath:   sourcePath,
			OutputPath:   outputPath,
			ErrorMessage: err.Error(),
		})
		log.Printf("parser: failed to parse %s, continuing with remaining files: %v", sourcePath, err)
	}

	return result, nil
}

// outputName replaces the input filename's extension with .md.
func outputName(sourcePath string) string {
	name := path.Base(sourcePath)
	return strings.TrimSuffix(name, path.Ext(name)) + ".md"
}

// waitForCompletion polls the job until a terminal status. The timeout
// budget is wall-clock time from loop start, not per attempt; a single
// slow poll can consume all of it.
func (c *Client) waitForCompletion(ctx context.Context, sourcePath, jobID string) (*jobStatusResponse, error) {
	start := c.now()

	for {
		if c.now().Sub(start) > c.pollTimeout {
			return nil, &TimeoutError{JobID: jobID, Timeout: c.pollTimeout}
		}

		status, err := c.pollJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case statusCompleted:
			if status.ErrorMessage != "" {
				return nil, &JobError{SourcePath: sourcePath, JobID: jobID, Message: status.ErrorMessage}
			}
			return status, nil
		case statusFailed:
			message := status.ErrorMessage
			if message == "" {
				message = "unknown error"
			}
			return nil, &JobError{SourcePath: sourcePath, JobID: jobID, Message: message}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// submitJob submits one parse job through the retry wrapper.
func (c *Client) submitJob(ctx context.Context, sourcePath, outputPath string) (*submitResponse, error) {
	payload := map[string]any{
		"source_path":      sourcePath,
		"document_type":    c.documentType,
		"parser_type":      c.parserType,
		"parser_mode":      c.parserMode,
		"custom_options":   c.customOptions,
		"main_output_path": outputPath,
	}

	return retry.Do(ctx, "submit parse job", c.policy, func(ctx context.Context) (*submitResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, submitRequestTimeout)
		defer cancel()

		body, err := c.postJSON(ctx, c.baseURL+"/api/v1/parse_from_oss", payload)
		if err != nil {
			return nil, err
		}
		var result submitResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode submit response: %w", err)
		}
		return &result, nil
	})
}

// pollJob fetches the job status through the retry wrapper. The retry
// policy covers transport failures of the poll call only; job-level
// outcomes are handled by the polling loop.
func (c *Client) pollJob(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	return retry.Do(ctx, "poll job status", c.policy, func(ctx context.Context) (*jobStatusResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, statusRequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/jobs/"+jobID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		body, err := c.do(req)
		if err != nil {
			return nil, err
		}
		var status jobStatusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, fmt.Errorf("failed to decode job status: %w", err)
		}
		return &status, nil
	})
}

func (c *Client) postJSON(ctx context.Context, url string, payload map[string]any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parse service returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
