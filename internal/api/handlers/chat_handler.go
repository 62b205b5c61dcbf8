package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/core/retrieval"
)

const groundedSystemPrompt = "You are an assistant answering questions about the user's uploaded documents. " +
	"Answer using only the provided document excerpts. " +
	"If the excerpts do not contain the answer, say you cannot find it in the documents."

const ungroundedSystemPrompt = "You are an assistant for a document knowledge base. " +
	"No relevant document excerpts were found for this question; answer from general knowledge " +
	"and mention that the documents did not cover it."

type ChatHandler struct {
	assembler *retrieval.Assembler
	llm       core.LLMProvider
}

func NewChatHandler(assembler *retrieval.Assembler, llm core.LLMProvider) *ChatHandler {
	return &ChatHandler{assembler: assembler, llm: llm}
}

type chatRequest struct {
	Message     string   `json:"message"`
	DocumentIDs []string `json:"documentIds"`
}

type chatResponse struct {
	Answer       string   `json:"answer"`
	ContextUsed  bool     `json:"contextUsed"`
	UsedChunkIDs []string `json:"usedChunkIds"`
}

// Query answers a question grounded in retrieved document context. When no
// context clears the relevance bar the model still answers, ungrounded.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	grounding, err := h.assembler.BuildContext(ctx, req.Message, req.DocumentIDs)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("context assembly failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	systemPrompt := ungroundedSystemPrompt
	userPrompt := req.Message
	if grounding.Used() {
		systemPrompt = groundedSystemPrompt
		userPrompt = fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", grounding.Text, req.Message)
	}

	answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("generation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	usedIDs := grounding.UsedChunkIDs
	if usedIDs == nil {
		usedIDs = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:       answer,
		ContextUsed:  grounding.Used(),
		UsedChunkIDs: usedIDs,
	})
}
