package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul268484/document-mining/internal/core"
)

func TestGenerateCombinesPrompts(t *testing.T) {
	var gotPrompt string
	var gotStream any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req["prompt"].(string)
		gotStream = req["stream"]
		json.NewEncoder(w).Encode(map[string]string{"response": "the answer"})
	}))
	defer srv.Close()

	g := NewOllamaLLM(GenConfig{BaseURL: srv.URL})
	answer, err := g.Generate(context.Background(), "You are helpful.", "What is up?")
	require.NoError(t, err)

	assert.Equal(t, "the answer", answer)
	assert.Equal(t, false, gotStream)
	assert.True(t, strings.HasPrefix(gotPrompt, "You are helpful.\n\n"))
	assert.True(t, strings.HasSuffix(gotPrompt, "What is up?"))
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	g := NewOllamaLLM(GenConfig{BaseURL: "http://localhost:0"})
	_, err := g.Generate(context.Background(), "system", "   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGenerateClassifiesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewOllamaLLM(GenConfig{BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "", "question")
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestGenerateClassifiesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewOllamaLLM(GenConfig{BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "", "question")
	require.Error(t, err)
	assert.False(t, core.IsTransient(err))
}
