package ingestion_engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paul268484/document-mining/internal/models"
)

// fakeStore records every mutation the pool and monitor perform, with
// per-document error injection.
type fakeStore struct {
	mu sync.Mutex

	statusLog     []string // "docID:status"
	completedDocs map[string]int
	failedDocs    map[string]string
	chunksByDoc   map[string][]models.DocumentChunk
	embeddings    map[string][]float32
	completedJobs []string
	failJobCalls  []failJobCall

	claimErr        error
	replaceErr      error
	updateStatusErr map[string]error
	latestRetry     map[string]int
	latestRetryErr  error
	stalledDocs     []models.Document
	stalledErr      error
	lastOlderThan   time.Duration
}

type failJobCall struct {
	jobID      string
	errMsg     string
	retryCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		completedDocs:   map[string]int{},
		failedDocs:      map[string]string{},
		chunksByDoc:     map[string][]models.DocumentChunk{},
		embeddings:      map[string][]float32{},
		updateStatusErr: map[string]error{},
		latestRetry:     map[string]int{},
	}
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateStatusErr[id]; err != nil {
		return err
	}
	s.statusLog = append(s.statusLog, id+":"+status)
	return nil
}

func (s *fakeStore) SetDocumentCompleted(_ context.Context, id string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedDocs[id] = chunkCount
	return nil
}

func (s *fakeStore) SetDocumentFailed(_ context.Context, id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedDocs[id] = errMsg
	return nil
}

func (s *fakeStore) ReplaceDocumentChunks(_ context.Context, documentID string, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.chunksByDoc[documentID] = chunks
	return nil
}

func (s *fakeStore) UpdateChunkEmbedding(_ context.Context, chunkID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[chunkID] = embedding
	return nil
}

func (s *fakeStore) ClaimJob(_ context.Context, documentID string) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &models.ProcessingJob{ID: "job-" + documentID, DocumentID: documentID, Status: models.StatusProcessing}, nil
}

func (s *fakeStore) CompleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedJobs = append(s.completedJobs, jobID)
	return nil
}

func (s *fakeStore) FailJob(_ context.Context, jobID, errMsg string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failJobCalls = append(s.failJobCalls, failJobCall{jobID: jobID, errMsg: errMsg, retryCount: retryCount})
	return nil
}

func (s *fakeStore) FindStalledDocuments(_ context.Context, olderThan time.Duration) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOlderThan = olderThan
	return s.stalledDocs, s.stalledErr
}

func (s *fakeStore) LatestJobRetryCount(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestRetryErr != nil {
		return 0, s.latestRetryErr
	}
	return s.latestRetry[documentID], nil
}

// fakeQueue records pushes; Pop drains a preloaded slice then reports empty.
type fakeQueue struct {
	mu      sync.Mutex
	pushed  []models.IngestJob
	pending []*models.IngestJob
	pushErr error
}

func (q *fakeQueue) Push(_ context.Context, job *models.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return q.pushErr
	}
	q.pushed = append(q.pushed, *job)
	return nil
}

func (q *fakeQueue) Pop(_ context.Context) (*models.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, nil
}

func (q *fakeQueue) pushedJobs() []models.IngestJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.IngestJob, len(q.pushed))
	copy(out, q.pushed)
	return out
}

// fakeEmbedder returns a fixed vector, optionally failing every call.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, text := range texts {
		vectors[i], errs[i] = e.Embed(ctx, text)
	}
	return vectors, errs
}

// fakeExtractor returns canned text or a canned error.
type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) ExtractText(_ context.Context, _, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

var errBoom = errors.New("boom")

// immediateRetry keeps test runs fast: same ceiling, zero backoff.
func immediateRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return 0 },
	}
}
