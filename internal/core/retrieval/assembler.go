package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

const (
	DefaultContextThreshold = 0.6
	DefaultContextTopK      = 5
)

// SemanticSearcher is the slice of the engine the assembler depends on.
type SemanticSearcher interface {
	Semantic(ctx context.Context, query string, opts Options) ([]models.SearchResult, error)
}

// GroundingContext is the bounded text block handed to generation, plus the
// chunk ids it cites. An empty Text means no grounding was available; that
// is a normal state, not an error, and callers generate ungrounded.
type GroundingContext struct {
	Text         string
	UsedChunkIDs []string
}

// Used reports whether any grounding was assembled.
func (g *GroundingContext) Used() bool {
	return len(g.UsedChunkIDs) > 0
}

// Assembler turns top-ranked chunks into a citation-annotated context block
// for chat generation.
type Assembler struct {
	searcher  SemanticSearcher
	threshold float64
	topK      int
}

func NewAssembler(searcher SemanticSearcher) *Assembler {
	return &Assembler{
		searcher:  searcher,
		threshold: DefaultContextThreshold,
		topK:      DefaultContextTopK,
	}
}

// BuildContext runs semantic retrieval for the query and formats the hits as
// "[filename — section_or_index]" headed blocks separated by blank lines.
// Semantic unavailability or zero hits yield the empty context.
func (a *Assembler) BuildContext(ctx context.Context, query string, documentIDs []string) (*GroundingContext, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidInput)
	}

	results, err := a.searcher.Semantic(ctx, query, Options{
		Limit:       a.topK,
		DocumentIDs: documentIDs,
		Threshold:   a.threshold,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			return nil, err
		}
		// No grounding available; the caller proceeds ungrounded.
		slog.Warn("context assembly proceeding without grounding", slog.String("error", err.Error()))
		return &GroundingContext{}, nil
	}
	if len(results) == 0 {
		return &GroundingContext{}, nil
	}

	var (
		blocks []string
		ids    []string
	)
	for _, r := range results {
		section := r.SectionTitle
		if section == "" {
			section = fmt.Sprintf("chunk %d", r.ChunkIndex)
		}
		blocks = append(blocks, fmt.Sprintf("[%s — %s]\n%s", r.DocumentName, section, r.Content))
		ids = append(ids, r.ChunkID)
	}

	return &GroundingContext{
		Text:         strings.Join(blocks, "\n\n"),
		UsedChunkIDs: ids,
	}, nil
}
