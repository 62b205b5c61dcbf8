package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paul268484/document-mining/internal/core"
)

const DefaultGenModel = "llama3.1"

// GenConfig holds configuration for the generation client.
type GenConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// OllamaLLM generates completions over the Ollama-shaped HTTP API. It does
// not retry; callers decide whether a failed generation is worth repeating.
type OllamaLLM struct {
	client *http.Client
	cfg    GenConfig
}

var _ core.LLMProvider = (*OllamaLLM)(nil)

func NewOllamaLLM(cfg GenConfig) *OllamaLLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &OllamaLLM{
		client: &http.Client{},
		cfg:    cfg,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (g *OllamaLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", core.ErrInvalidInput)
	}

	prompt := userPrompt
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + userPrompt
	}

	body, err := json.Marshal(generateRequest{
		Model:  g.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: g.cfg.Temperature,
			TopP:        g.cfg.TopP,
			MaxTokens:   g.cfg.MaxTokens,
			Stop:        g.cfg.Stop,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &core.TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		msg := fmt.Errorf("generation failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", &core.TransientError{Err: msg}
		}
		return "", &core.PermanentError{Err: msg}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &core.PermanentError{Err: fmt.Errorf("malformed generation response: %w", err)}
	}
	return out.Response, nil
}
