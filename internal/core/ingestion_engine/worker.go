package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

// Store is the persistence surface the worker pool needs.
type Store interface {
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	SetDocumentCompleted(ctx context.Context, id string, chunkCount int) error
	SetDocumentFailed(ctx context.Context, id string, errMsg string) error
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error
	ClaimJob(ctx context.Context, documentID string) (*models.ProcessingJob, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID string, errMsg string, retryCount int) error
}

// Pool runs a bounded set of ingestion workers against the job queue. Each
// worker drives one job at a time through extract -> chunk -> store -> embed
// and owns the document status transitions along the way.
type Pool struct {
	store     Store
	queue     core.JobQueue
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	chunker   *Chunker
	retry     RetryPolicy
	workers   int
}

func NewPool(store Store, queue core.JobQueue, embedder core.EmbeddingProvider, extractor core.TextExtractor, chunker *Chunker, retry RetryPolicy, workers int) *Pool {
	if workers <= 0 {
		workers = 3
	}
	if chunker == nil {
		chunker = NewDefaultChunker()
	}
	return &Pool{
		store:     store,
		queue:     queue,
		embedder:  embedder,
		extractor: extractor,
		chunker:   chunker,
		retry:     retry,
		workers:   workers,
	}
}

// Run blocks until the context is cancelled or the broker connection fails.
// A broker failure stops the whole pool; restarting is a supervisory concern.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 1; w <= p.workers; w++ {
		id := w
		g.Go(func() error {
			return p.runWorker(ctx, id)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) error {
	log := slog.With(slog.Int("worker", id))
	log.Info("ingestion worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("ingestion worker shutting down")
			return nil
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d: broker failure: %w", id, err)
		}
		if job == nil {
			continue
		}

		log.Info("processing document",
			slog.String("document_id", job.DocumentID),
			slog.Int("retry_count", job.RetryCount))
		p.process(ctx, job)
	}
}

// process runs one job end to end, including the failure bookkeeping: any
// job-level error marks the job failed and re-pushes it with an incremented
// retry count while the policy allows.
func (p *Pool) process(ctx context.Context, job *models.IngestJob) {
	pj, err := p.store.ClaimJob(ctx, job.DocumentID)
	if err != nil {
		p.failAndMaybeRequeue(ctx, job, "", fmt.Errorf("claim job: %w", err))
		return
	}

	if err := p.runJob(ctx, job, pj); err != nil {
		slog.Error("document processing failed",
			slog.String("document_id", job.DocumentID),
			slog.String("error", err.Error()))
		p.failAndMaybeRequeue(ctx, job, pj.ID, err)
	}
}

func (p *Pool) runJob(ctx context.Context, job *models.IngestJob, pj *models.ProcessingJob) error {
	if err := p.store.UpdateDocumentStatus(ctx, job.DocumentID, models.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	text, err := p.extractor.ExtractText(ctx, job.FilePath, job.MimeType)
	if err != nil {
		p.markDocumentFailed(ctx, job.DocumentID, err)
		return fmt.Errorf("extract text: %w", err)
	}

	fragments := p.chunker.Split(text)
	chunks := make([]models.DocumentChunk, 0, len(fragments))
	for _, frag := range fragments {
		chunks = append(chunks, models.DocumentChunk{
			ID:            uuid.NewString(),
			DocumentID:    job.DocumentID,
			ChunkIndex:    frag.Index,
			Content:       frag.Content,
			ContentLength: len(frag.Content),
			PageNumber:    frag.PageNumber,
			SectionTitle:  frag.SectionTitle,
		})
	}

	// Atomic replace: reprocessing never leaves a partial mix of two
	// chunking passes behind.
	if err := p.store.ReplaceDocumentChunks(ctx, job.DocumentID, chunks); err != nil {
		p.markDocumentFailed(ctx, job.DocumentID, err)
		return fmt.Errorf("replace chunks: %w", err)
	}

	// Embeddings are best effort: a failed vector leaves the chunk
	// lexically searchable with a NULL embedding and never blocks the job.
	embedded := p.embedChunks(ctx, chunks)

	if err := p.store.SetDocumentCompleted(ctx, job.DocumentID, len(chunks)); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := p.store.CompleteJob(ctx, pj.ID); err != nil {
		slog.Warn("complete job record failed",
			slog.String("job_id", pj.ID),
			slog.String("error", err.Error()))
	}

	slog.Info("document ingested",
		slog.String("document_id", job.DocumentID),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", embedded))
	return nil
}

func (p *Pool) embedChunks(ctx context.Context, chunks []models.DocumentChunk) int {
	embedded := 0
	for i := range chunks {
		ch := &chunks[i]
		vec, err := p.embedder.Embed(ctx, ch.Content)
		if err != nil {
			slog.Warn("chunk embedding failed",
				slog.String("chunk_id", ch.ID),
				slog.Int("chunk_index", ch.ChunkIndex),
				slog.String("error", err.Error()))
			continue
		}
		if err := p.store.UpdateChunkEmbedding(ctx, ch.ID, vec); err != nil {
			slog.Warn("chunk embedding persist failed",
				slog.String("chunk_id", ch.ID),
				slog.String("error", err.Error()))
			continue
		}
		embedded++
	}
	return embedded
}

func (p *Pool) markDocumentFailed(ctx context.Context, documentID string, cause error) {
	if err := p.store.SetDocumentFailed(ctx, documentID, cause.Error()); err != nil {
		slog.Warn("mark document failed errored",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
	}
}

// failAndMaybeRequeue records the failure on the job row (when one was
// claimed) and re-pushes the job with an incremented retry count while the
// policy allows; past the ceiling the job stays failed and is visible only
// through operational stats.
func (p *Pool) failAndMaybeRequeue(ctx context.Context, job *models.IngestJob, jobID string, cause error) {
	retryCount := job.RetryCount + 1

	if jobID != "" {
		if err := p.store.FailJob(ctx, jobID, cause.Error(), retryCount); err != nil {
			slog.Warn("fail job record errored",
				slog.String("document_id", job.DocumentID),
				slog.String("error", err.Error()))
		}
	}

	if p.retry.Exhausted(retryCount) {
		slog.Error("job retries exhausted",
			slog.String("document_id", job.DocumentID),
			slog.Int("retry_count", retryCount))
		return
	}

	if p.retry.Backoff != nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retry.Backoff(retryCount)):
		}
	}

	requeued := *job
	requeued.RetryCount = retryCount
	requeued.Timestamp = time.Now().UTC()
	if err := p.queue.Push(ctx, &requeued); err != nil {
		slog.Error("job requeue failed",
			slog.String("document_id", job.DocumentID),
			slog.String("error", err.Error()))
	}
}
