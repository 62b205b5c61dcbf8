package ingestion_engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

// MonitorStore is the persistence surface the stuck-document monitor needs.
type MonitorStore interface {
	FindStalledDocuments(ctx context.Context, olderThan time.Duration) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	SetDocumentFailed(ctx context.Context, id string, errMsg string) error
	LatestJobRetryCount(ctx context.Context, documentID string) (int, error)
}

// Monitor periodically sweeps for documents stalled in pending/processing,
// the trace a crashed worker leaves behind, and requeues them with a bounded
// retry count. The sweeping flag guarantees two sweeps never overlap, so a
// slow sweep cannot double-requeue the same document.
type Monitor struct {
	store     MonitorStore
	queue     core.JobQueue
	interval  time.Duration
	threshold time.Duration
	retry     RetryPolicy

	sweeping atomic.Bool
}

func NewMonitor(store MonitorStore, queue core.JobQueue, interval, threshold time.Duration, retry RetryPolicy) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if threshold <= 0 {
		threshold = 15 * time.Minute
	}
	return &Monitor{
		store:     store,
		queue:     queue,
		interval:  interval,
		threshold: threshold,
		retry:     retry,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("stuck-job monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("threshold", m.threshold))

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck-job monitor stopped")
			return
		case <-ticker.C:
			requeued, err := m.Sweep(ctx)
			if err != nil {
				slog.Error("stuck-job sweep failed", slog.String("error", err.Error()))
			} else if requeued > 0 {
				slog.Info("stuck-job sweep requeued documents", slog.Int("requeued", requeued))
			}
		}
	}
}

// Sweep requeues every document stalled longer than the threshold, and
// returns how many were requeued. A sweep already in flight makes this call
// a no-op. Per-document failures are logged and skipped, never fatal to the
// rest of the sweep.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	if !m.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer m.sweeping.Store(false)

	docs, err := m.store.FindStalledDocuments(ctx, m.threshold)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for i := range docs {
		doc := &docs[i]

		retryCount, err := m.store.LatestJobRetryCount(ctx, doc.ID)
		if err != nil {
			slog.Warn("stalled document retry lookup failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
			continue
		}

		next := retryCount + 1
		if m.retry.Exhausted(next) {
			if err := m.store.SetDocumentFailed(ctx, doc.ID, "processing retries exhausted"); err != nil {
				slog.Warn("stalled document fail-out errored",
					slog.String("document_id", doc.ID),
					slog.String("error", err.Error()))
			}
			continue
		}

		if err := m.store.UpdateDocumentStatus(ctx, doc.ID, models.StatusPending); err != nil {
			slog.Warn("stalled document reset failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
			continue
		}

		job := &models.IngestJob{
			DocumentID: doc.ID,
			FilePath:   doc.FilePath,
			MimeType:   doc.MimeType,
			Timestamp:  time.Now().UTC(),
			RetryCount: next,
		}
		if err := m.queue.Push(ctx, job); err != nil {
			slog.Warn("stalled document requeue failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
			continue
		}

		slog.Info("stalled document requeued",
			slog.String("document_id", doc.ID),
			slog.String("status", doc.Status),
			slog.Int("retry_count", next))
		requeued++
	}
	return requeued, nil
}
