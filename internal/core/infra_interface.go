package core

import (
	"context"

	"github.com/paul268484/document-mining/internal/models"
)

// EmbeddingProvider turns text into vectors. EmbedBatch never aborts on a
// single item: failed items hold a nil vector and a matching entry in the
// returned error slice, indices preserved.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error)
}

// LLMProvider generates a completion for a prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// JobQueue is a durable FIFO of ingestion jobs. Push is non-blocking; Pop
// blocks up to a short poll timeout and returns (nil, nil) when nothing
// arrived, so workers can observe shutdown between polls.
type JobQueue interface {
	Push(ctx context.Context, job *models.IngestJob) error
	Pop(ctx context.Context) (*models.IngestJob, error)
}

// TextExtractor converts a stored file into plain text. Extraction is a
// collaborator concern; the ingestion pipeline only ever sees the text.
type TextExtractor interface {
	ExtractText(ctx context.Context, filePath string, mimeType string) (string, error)
}
