// Package retrieval implements lexical, semantic and hybrid search over the
// chunk store, plus the context assembly used to ground chat generation.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

// Search type labels carried on results.
const (
	SearchTypeText     = "text"
	SearchTypeSemantic = "semantic"
	SearchTypeHybrid   = "hybrid"
)

const (
	DefaultLimit     = 10
	DefaultThreshold = 0.65
)

// Store is the persistence surface the retrieval engine reads from. The
// engine never mutates documents or chunks.
type Store interface {
	LexicalSearch(ctx context.Context, query string, limit int, documentIDs []string) ([]models.SearchResult, error)
	ListEmbeddedChunks(ctx context.Context, documentIDs []string) ([]models.EmbeddedChunk, error)
	RecordSearchQuery(ctx context.Context, q *models.SearchQuery) error
}

// Embedder produces the query vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options narrows a search: Limit caps results, DocumentIDs restricts to
// those documents when non-empty, Threshold overrides the default minimum
// similarity for semantic scoring.
type Options struct {
	Limit       int
	DocumentIDs []string
	Threshold   float64
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// Engine serves the three retrieval strategies. Every search appends a row
// to the query analytics table; analytics failures never fail the search.
type Engine struct {
	store    Store
	embedder Embedder
}

func NewEngine(store Store, embedder Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Search dispatches on the strategy label used by the transport contract.
func (e *Engine) Search(ctx context.Context, query, searchType string, opts Options) ([]models.SearchResult, error) {
	switch searchType {
	case SearchTypeSemantic:
		return e.Semantic(ctx, query, opts)
	case SearchTypeHybrid, "":
		return e.Hybrid(ctx, query, opts)
	case SearchTypeText:
		return e.Lexical(ctx, query, opts)
	default:
		return nil, fmt.Errorf("%w: unknown search type %q", core.ErrInvalidInput, searchType)
	}
}

// Lexical ranks chunks of completed documents by full-text relevance.
func (e *Engine) Lexical(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidInput)
	}

	start := time.Now()
	results, err := e.lexical(ctx, query, opts.limit(), opts.DocumentIDs)
	if err != nil {
		return nil, err
	}
	e.record(ctx, query, SearchTypeText, len(results), time.Since(start))
	return results, nil
}

// Semantic embeds the query and scores it against every stored non-nil
// embedding. When the query embedding cannot be produced the whole operation
// fails with core.ErrSemanticUnavailable; callers may fall back to lexical.
func (e *Engine) Semantic(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidInput)
	}

	start := time.Now()
	results, err := e.semantic(ctx, query, opts.limit(), opts.DocumentIDs, opts.threshold())
	if err != nil {
		return nil, err
	}
	e.record(ctx, query, SearchTypeSemantic, len(results), time.Since(start))
	return results, nil
}

// Hybrid fans out to the lexical and semantic strategies concurrently, each
// asked for ceil(limit/2) results, and fuses by chunk identity: a chunk seen
// by both sub-searches is relabeled hybrid and keeps the higher score. Both
// sub-searches always run to completion; if only one fails its results are
// simply absent from the merge.
func (e *Engine) Hybrid(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidInput)
	}

	start := time.Now()
	limit := opts.limit()
	subLimit := (limit + 1) / 2

	var (
		wg             sync.WaitGroup
		lexRes, semRes []models.SearchResult
		lexErr, semErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexRes, lexErr = e.lexical(ctx, query, subLimit, opts.DocumentIDs)
	}()
	go func() {
		defer wg.Done()
		semRes, semErr = e.semantic(ctx, query, subLimit, opts.DocumentIDs, opts.threshold())
	}()
	wg.Wait()

	if lexErr != nil && semErr != nil {
		return nil, fmt.Errorf("hybrid search: %w", lexErr)
	}
	if semErr != nil {
		slog.Warn("hybrid search degraded to lexical only", slog.String("error", semErr.Error()))
		semRes = nil
	}
	if lexErr != nil {
		slog.Warn("hybrid search degraded to semantic only", slog.String("error", lexErr.Error()))
		lexRes = nil
	}

	merged := mergeResults(lexRes, semRes)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	e.record(ctx, query, SearchTypeHybrid, len(merged), time.Since(start))
	return merged, nil
}

func (e *Engine) lexical(ctx context.Context, query string, limit int, documentIDs []string) ([]models.SearchResult, error) {
	results, err := e.store.LexicalSearch(ctx, query, limit, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return results, nil
}

func (e *Engine) semantic(ctx context.Context, query string, limit int, documentIDs []string, threshold float64) ([]models.SearchResult, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSemanticUnavailable, err)
	}

	chunks, err := e.store.ListEmbeddedChunks(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("list embedded chunks: %w", err)
	}

	var results []models.SearchResult
	for i := range chunks {
		ch := &chunks[i]
		score := CosineSimilarity(queryVec, ch.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:      ch.ID,
			DocumentID:   ch.DocumentID,
			DocumentName: ch.DocumentName,
			ChunkIndex:   ch.ChunkIndex,
			Content:      ch.Content,
			Score:        score,
			SearchType:   SearchTypeSemantic,
			PageNumber:   ch.PageNumber,
			SectionTitle: ch.SectionTitle,
		})
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// mergeResults fuses the two sub-result sets by chunk id. A chunk present in
// only one keeps its label and score; present in both it becomes hybrid with
// score max(text, semantic).
func mergeResults(lexical, semantic []models.SearchResult) []models.SearchResult {
	byID := make(map[string]models.SearchResult, len(lexical)+len(semantic))
	order := make([]string, 0, len(lexical)+len(semantic))

	for _, r := range lexical {
		byID[r.ChunkID] = r
		order = append(order, r.ChunkID)
	}
	for _, r := range semantic {
		if existing, ok := byID[r.ChunkID]; ok {
			existing.SearchType = SearchTypeHybrid
			if r.Score > existing.Score {
				existing.Score = r.Score
			}
			byID[r.ChunkID] = existing
			continue
		}
		byID[r.ChunkID] = r
		order = append(order, r.ChunkID)
	}

	merged := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sortResults(merged)
	return merged
}

// sortResults orders by score descending with a deterministic tie-break on
// chunk index ascending, then chunk id.
func sortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

// record appends a query analytics row; failures are logged, never surfaced.
func (e *Engine) record(ctx context.Context, query, searchType string, resultCount int, elapsed time.Duration) {
	row := &models.SearchQuery{
		ID:              uuid.NewString(),
		QueryText:       query,
		SearchType:      searchType,
		ResultCount:     resultCount,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if err := e.store.RecordSearchQuery(ctx, row); err != nil {
		slog.Warn("search analytics record failed", slog.String("error", err.Error()))
	}
}
