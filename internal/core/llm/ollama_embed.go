package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paul268484/document-mining/internal/core"
)

// Default configuration values.
const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultEmbedModel    = "nomic-embed-text"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
	DefaultMaxInputChars = 8000
)

// EmbedConfig holds configuration for the embedding client.
type EmbedConfig struct {
	// BaseURL is the embedding service base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout bounds each individual attempt (default: 60s).
	Timeout time.Duration

	// MaxRetries is the total attempt budget, not the retry count after the
	// first attempt (default: 3).
	MaxRetries int

	// RetryDelay seeds the exponential backoff between attempts (default: 1s).
	RetryDelay time.Duration

	// MaxInputChars truncates input before submission to bound request size.
	MaxInputChars int
}

// OllamaEmbedder generates embeddings over the Ollama-shaped HTTP API.
// Transient failures (timeout, 5xx, network) are retried with exponential
// backoff; auth rejections and malformed responses abort immediately. A 404
// on the primary route triggers one try of the alternate route within the
// same attempt, since some backends expose the endpoint under a different name.
type OllamaEmbedder struct {
	client *http.Client
	cfg    EmbedConfig
}

var _ core.EmbeddingProvider = (*OllamaEmbedder)(nil)

func NewOllamaEmbedder(cfg EmbedConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}

	// No client-level timeout: each attempt runs under its own context so a
	// timed-out call is cancelled and counted as a transient failure.
	return &OllamaEmbedder{
		client: &http.Client{},
		cfg:    cfg,
	}
}

// Embed generates a vector embedding for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty text", core.ErrInvalidInput)
	}
	if runes := []rune(trimmed); len(runes) > e.cfg.MaxInputChars {
		trimmed = string(runes[:e.cfg.MaxInputChars])
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := e.cfg.RetryDelay * (1 << (attempt - 2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		vec, err := e.doEmbed(attemptCtx, trimmed)
		cancel()

		if err == nil {
			return vec, nil
		}
		if !core.IsTransient(err) {
			// Permanent failures consume no retries.
			return nil, err
		}
		lastErr = err

		slog.Debug("embedding attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", e.cfg.MaxRetries),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &core.EmbeddingError{Attempts: e.cfg.MaxRetries, Err: lastErr}
}

// EmbedBatch generates embeddings for multiple texts. A failed item yields a
// nil vector and an entry in the parallel error slice; the batch never aborts
// as a whole, and indices are preserved.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			errs[i] = err
			continue
		}
		vectors[i] = vec
	}
	return vectors, errs
}

// doEmbed performs one attempt: the primary route, then the alternate route
// if the primary is not there.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	vec, status, err := e.post(ctx, "/api/embeddings", map[string]any{
		"model":  e.cfg.Model,
		"prompt": text,
	})
	if err != nil && status == http.StatusNotFound {
		vec, _, err = e.post(ctx, "/api/embed", map[string]any{
			"model": e.cfg.Model,
			"input": text,
		})
	}
	return vec, err
}

// post issues one HTTP call and classifies the outcome into the transient /
// permanent taxonomy. The raw status code is returned so the caller can
// detect 404 for the alternate-route fallback.
func (e *OllamaEmbedder) post(ctx context.Context, path string, payload map[string]any) ([]float32, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, &core.PermanentError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &core.PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying.
		return nil, 0, &core.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, &core.PermanentError{Err: fmt.Errorf("endpoint %s not found", path)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, &core.PermanentError{Err: fmt.Errorf("embedding service rejected request (status %d)", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, &core.TransientError{Err: fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, &core.PermanentError{Err: fmt.Errorf("embedding request invalid (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &core.TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	vec, err := parseEmbedding(raw)
	if err != nil {
		return nil, resp.StatusCode, &core.PermanentError{Err: err}
	}
	return vec, resp.StatusCode, nil
}

// parseEmbedding tolerates the response layouts embedding backends disagree
// on: {"embedding":[...]}, {"data":[{"embedding":[...]}]} and
// {"embeddings":[[...]]}. Anything else is a malformed response.
func parseEmbedding(raw []byte) ([]float32, error) {
	var shape struct {
		Embedding []float64 `json:"embedding"`
		Data      []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("malformed embedding response: %w", err)
	}

	var values []float64
	switch {
	case len(shape.Embedding) > 0:
		values = shape.Embedding
	case len(shape.Data) > 0 && len(shape.Data[0].Embedding) > 0:
		values = shape.Data[0].Embedding
	case len(shape.Embeddings) > 0 && len(shape.Embeddings[0]) > 0:
		values = shape.Embeddings[0]
	default:
		return nil, fmt.Errorf("malformed embedding response: no recognizable vector")
	}

	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}
