package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/core/retrieval"
	"github.com/paul268484/document-mining/internal/models"
)

type SearchHandler struct {
	engine *retrieval.Engine
}

func NewSearchHandler(engine *retrieval.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

type searchRequest struct {
	Query       string   `json:"query"`
	SearchType  string   `json:"searchType"`
	Limit       int      `json:"limit"`
	DocumentIDs []string `json:"documentIds"`
	Threshold   float64  `json:"threshold"`
}

type searchResponse struct {
	Results         []models.SearchResult `json:"results"`
	TotalResults    int                   `json:"totalResults"`
	ExecutionTimeMs int64                 `json:"executionTime"`
	SearchType      string                `json:"searchType"`
}

// Search runs the requested retrieval strategy. searchType defaults to
// hybrid when omitted.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	searchType := req.SearchType
	if searchType == "" {
		searchType = retrieval.SearchTypeHybrid
	}

	start := time.Now()
	results, err := h.engine.Search(r.Context(), req.Query, searchType, retrieval.Options{
		Limit:       req.Limit,
		DocumentIDs: req.DocumentIDs,
		Threshold:   req.Threshold,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrSemanticUnavailable):
			writeError(w, http.StatusServiceUnavailable, "semantic search unavailable")
		default:
			slog.Error("search failed",
				slog.String("search_type", searchType),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results:         results,
		TotalResults:    len(results),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		SearchType:      searchType,
	})
}
