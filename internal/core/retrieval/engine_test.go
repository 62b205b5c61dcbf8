package retrieval

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

var errBroken = errors.New("broken")

type fakeSearchStore struct {
	mu sync.Mutex

	lexical   []models.SearchResult
	lexErr    error
	chunks    []models.EmbeddedChunk
	chunksErr error
	recorded  []models.SearchQuery
}

func (s *fakeSearchStore) LexicalSearch(_ context.Context, _ string, limit int, _ []string) ([]models.SearchResult, error) {
	if s.lexErr != nil {
		return nil, s.lexErr
	}
	out := make([]models.SearchResult, len(s.lexical))
	copy(out, s.lexical)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeSearchStore) ListEmbeddedChunks(_ context.Context, _ []string) ([]models.EmbeddedChunk, error) {
	if s.chunksErr != nil {
		return nil, s.chunksErr
	}
	return s.chunks, nil
}

func (s *fakeSearchStore) RecordSearchQuery(_ context.Context, q *models.SearchQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, *q)
	return nil
}

func (s *fakeSearchStore) recordedQueries() []models.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SearchQuery, len(s.recorded))
	copy(out, s.recorded)
	return out
}

type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (e *fakeQueryEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, e.err
}

// lexResult builds a lexical hit; the numeric suffix doubles as chunk index.
func lexResult(id string, index int, score float64) models.SearchResult {
	return models.SearchResult{
		ChunkID:    id,
		DocumentID: "doc-1",
		ChunkIndex: index,
		Content:    "content of " + id,
		Score:      score,
		SearchType: SearchTypeText,
	}
}

// embChunk builds an embedded chunk whose cosine similarity against the unit
// query vector [1,0] equals exactly the given score.
func embChunk(id string, index int, score float64) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		DocumentChunk: models.DocumentChunk{
			ID:         id,
			DocumentID: "doc-1",
			ChunkIndex: index,
			Content:    "content of " + id,
			Embedding:  []float32{float32(score), float32(math.Sqrt(1 - score*score))},
		},
		DocumentName: "report.pdf",
	}
}

var queryVec = []float32{1, 0}

func TestLexicalSearchValidatesQuery(t *testing.T) {
	e := NewEngine(&fakeSearchStore{}, &fakeQueryEmbedder{vec: queryVec})
	_, err := e.Lexical(context.Background(), "  ", Options{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSemanticSearchScoresAndFilters(t *testing.T) {
	store := &fakeSearchStore{
		chunks: []models.EmbeddedChunk{
			embChunk("c1", 1, 0.9),
			embChunk("c2", 2, 0.7),
			embChunk("c3", 3, 0.3), // below the default threshold
		},
	}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Semantic(context.Background(), "query", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, SearchTypeSemantic, results[0].SearchType)
	assert.Equal(t, "report.pdf", results[0].DocumentName)

	assert.Equal(t, "c2", results[1].ChunkID)
}

func TestSemanticSearchCustomThreshold(t *testing.T) {
	store := &fakeSearchStore{chunks: []models.EmbeddedChunk{
		embChunk("c1", 1, 0.5),
		embChunk("c2", 2, 0.2),
	}}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Semantic(context.Background(), "query", Options{Threshold: 0.4})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSemanticSearchLimitTruncation(t *testing.T) {
	store := &fakeSearchStore{chunks: []models.EmbeddedChunk{
		embChunk("c1", 1, 0.9),
		embChunk("c2", 2, 0.8),
		embChunk("c3", 3, 0.7),
	}}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Semantic(context.Background(), "query", Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "c2", results[1].ChunkID)
}

func TestSemanticSearchUnavailableWhenEmbeddingFails(t *testing.T) {
	e := NewEngine(&fakeSearchStore{}, &fakeQueryEmbedder{err: errBroken})
	_, err := e.Semantic(context.Background(), "query", Options{})
	assert.ErrorIs(t, err, core.ErrSemanticUnavailable)
}

func TestHybridMergeRelabelsAndKeepsMaxScore(t *testing.T) {
	store := &fakeSearchStore{
		lexical: []models.SearchResult{
			lexResult("c1", 1, 0.9),
			lexResult("c2", 2, 0.8),
			lexResult("c3", 3, 0.7),
			lexResult("c4", 4, 0.6),
			lexResult("c5", 5, 0.5),
		},
		chunks: []models.EmbeddedChunk{
			embChunk("c3", 3, 0.95),
			embChunk("c4", 4, 0.9),
			embChunk("c5", 5, 0.85),
			embChunk("c6", 6, 0.8),
			embChunk("c7", 7, 0.75),
			embChunk("c8", 8, 0.7),
		},
	}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Hybrid(context.Background(), "query", Options{Limit: 10})
	require.NoError(t, err)

	byID := map[string]models.SearchResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	// Chunks seen by both sub-searches become hybrid with the higher score.
	require.Contains(t, byID, "c3")
	assert.Equal(t, SearchTypeHybrid, byID["c3"].SearchType)
	assert.InDelta(t, 0.95, byID["c3"].Score, 1e-6)

	assert.Equal(t, SearchTypeHybrid, byID["c4"].SearchType)
	assert.InDelta(t, 0.9, byID["c4"].Score, 1e-6)

	// Single-source chunks keep their original label.
	assert.Equal(t, SearchTypeText, byID["c1"].SearchType)
	assert.Equal(t, SearchTypeSemantic, byID["c6"].SearchType)

	// Each sub-search was asked for ceil(10/2) = 5, so c8 never made it in.
	assert.NotContains(t, byID, "c8")

	// Ordered by score descending.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "c3", results[0].ChunkID)
}

func TestHybridTieBreaksOnChunkIndex(t *testing.T) {
	store := &fakeSearchStore{
		lexical: []models.SearchResult{
			lexResult("c9", 9, 0.8),
			lexResult("c2", 2, 0.8),
		},
	}
	e := NewEngine(store, &fakeQueryEmbedder{err: errBroken})

	results, err := e.Hybrid(context.Background(), "query", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].ChunkID, "equal scores order by chunk index")
	assert.Equal(t, "c9", results[1].ChunkID)
}

func TestHybridDegradesToLexicalWhenSemanticFails(t *testing.T) {
	store := &fakeSearchStore{
		lexical: []models.SearchResult{
			lexResult("c1", 1, 0.9),
			lexResult("c2", 2, 0.8),
		},
	}
	e := NewEngine(store, &fakeQueryEmbedder{err: errBroken})

	results, err := e.Hybrid(context.Background(), "query", Options{Limit: 10})
	require.NoError(t, err, "semantic failure degrades, it does not abort")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, SearchTypeText, r.SearchType)
	}
}

func TestHybridFailsWhenBothSubSearchesFail(t *testing.T) {
	store := &fakeSearchStore{lexErr: errBroken}
	e := NewEngine(store, &fakeQueryEmbedder{err: errBroken})

	_, err := e.Hybrid(context.Background(), "query", Options{Limit: 10})
	assert.Error(t, err)
}

func TestHybridTruncatesToLimit(t *testing.T) {
	store := &fakeSearchStore{
		lexical: []models.SearchResult{
			lexResult("c1", 1, 0.9),
			lexResult("c2", 2, 0.8),
		},
		chunks: []models.EmbeddedChunk{
			embChunk("c3", 3, 0.95),
			embChunk("c4", 4, 0.85),
		},
	}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Hybrid(context.Background(), "query", Options{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchRecordsAnalytics(t *testing.T) {
	store := &fakeSearchStore{
		lexical: []models.SearchResult{lexResult("c1", 1, 0.9)},
	}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	_, err := e.Lexical(context.Background(), "budget report", Options{})
	require.NoError(t, err)

	recorded := store.recordedQueries()
	require.Len(t, recorded, 1)
	assert.Equal(t, "budget report", recorded[0].QueryText)
	assert.Equal(t, SearchTypeText, recorded[0].SearchType)
	assert.Equal(t, 1, recorded[0].ResultCount)
	assert.NotEmpty(t, recorded[0].ID)
}

func TestSearchDispatch(t *testing.T) {
	store := &fakeSearchStore{lexical: []models.SearchResult{lexResult("c1", 1, 0.9)}}
	e := NewEngine(store, &fakeQueryEmbedder{vec: queryVec})

	results, err := e.Search(context.Background(), "query", "", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	_, err = e.Search(context.Background(), "query", "nonsense", Options{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
