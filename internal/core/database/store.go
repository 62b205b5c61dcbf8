package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paul268484/document-mining/internal/config"
	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

// Store is the Postgres/pgvector persistence layer for documents, chunks,
// processing jobs and search analytics.
type Store struct {
	db   *sql.DB
	caps SchemaCapabilities
}

func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	caps, err := probeSchemaCapabilities(pingCtx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema probe: %w", err)
	}

	return &Store{db: db, caps: caps}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Capabilities exposes the probed schema capabilities.
func (s *Store) Capabilities() SchemaCapabilities {
	return s.caps
}

// wrapConstraint maps unique/foreign-key violations onto core.ErrConstraint
// so callers can treat them as client-correctable instead of retryable.
func wrapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23503") {
		return fmt.Errorf("%w: %s", core.ErrConstraint, pgErr.Message)
	}
	return err
}

// Documents

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents (id, file_name, file_path, mime_type, status, uploaded_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	_, err := s.db.ExecContext(ctx, q, doc.ID, doc.FileName, doc.FilePath, doc.MimeType, doc.Status)
	return wrapConstraint(err)
}

func (s *Store) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, file_path, mime_type, status, chunk_count,
		       COALESCE(error_message, ''), uploaded_at, last_updated
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.FilePath, &d.MimeType, &d.Status, &d.ChunkCount,
		&d.ErrorMessage, &d.UploadedAt, &d.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, file_path, mime_type, status, chunk_count,
		       COALESCE(error_message, ''), uploaded_at, last_updated
		FROM documents
		ORDER BY uploaded_at DESC
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.FilePath, &d.MimeType, &d.Status, &d.ChunkCount,
			&d.ErrorMessage, &d.UploadedAt, &d.LastUpdated,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, last_updated = now()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (s *Store) SetDocumentCompleted(ctx context.Context, id string, chunkCount int) error {
	const q = `
		UPDATE documents
		SET status = 'completed', chunk_count = $2, error_message = NULL, last_updated = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, id, chunkCount)
	return err
}

func (s *Store) SetDocumentFailed(ctx context.Context, id string, errMsg string) error {
	const q = `
		UPDATE documents
		SET status = 'failed', error_message = $2, last_updated = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, id, errMsg)
	return err
}

// FindStalledDocuments returns documents sitting in pending/processing longer
// than olderThan, judged on the timestamp column the startup probe found.
func (s *Store) FindStalledDocuments(ctx context.Context, olderThan time.Duration) ([]models.Document, error) {
	q := fmt.Sprintf(`
		SELECT id, file_name, file_path, mime_type, status, chunk_count,
		       COALESCE(error_message, ''), uploaded_at, last_updated
		FROM documents
		WHERE status IN ('pending', 'processing')
		  AND %s < now() - make_interval(secs => $1)
		ORDER BY %s ASC
	`, s.caps.DocumentTimestampColumn, s.caps.DocumentTimestampColumn)

	rows, err := s.db.QueryContext(ctx, q, olderThan.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.FilePath, &d.MimeType, &d.Status, &d.ChunkCount,
			&d.ErrorMessage, &d.UploadedAt, &d.LastUpdated,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Chunks

// ReplaceDocumentChunks deletes any prior chunk set for the document and
// inserts the new one in a single transaction, so a reprocessed document
// never holds a partial mix of two chunking passes.
func (s *Store) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, content_length, embedding,
			 page_number, section_title, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]

		var embedding any
		if ch.Embedding != nil {
			embedding = pgvector.NewVector(ch.Embedding)
		}
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.ChunkIndex, ch.Content, ch.ContentLength,
			embedding, ch.PageNumber, ch.SectionTitle, meta,
		); err != nil {
			return wrapConstraint(err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	const q = `UPDATE document_chunks SET embedding = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, chunkID, pgvector.NewVector(embedding))
	return err
}

// ListEmbeddedChunks returns every chunk with a non-NULL embedding belonging
// to a completed document, optionally restricted to documentIDs.
func (s *Store) ListEmbeddedChunks(ctx context.Context, documentIDs []string) ([]models.EmbeddedChunk, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT c.id, c.document_id, d.file_name, c.chunk_index, c.content,
		       c.content_length, c.embedding, c.page_number, COALESCE(c.section_title, '')
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = 'completed' AND c.embedding IS NOT NULL
	`)
	args := []any{}
	if len(documentIDs) > 0 {
		args = append(args, documentIDs)
		b.WriteString(fmt.Sprintf(" AND c.document_id::text = ANY($%d)", len(args)))
	}
	b.WriteString(" ORDER BY c.document_id, c.chunk_index ASC")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmbeddedChunk
	for rows.Next() {
		var (
			ch  models.EmbeddedChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.DocumentName, &ch.ChunkIndex, &ch.Content,
			&ch.ContentLength, &emb, &ch.PageNumber, &ch.SectionTitle,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// LexicalSearch ranks chunks of completed documents by full-text relevance.
// Ties break on chunk_index ascending so equal-score results are stable.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int, documentIDs []string) ([]models.SearchResult, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT c.id, c.document_id, d.file_name, c.chunk_index, c.content,
		       ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $1)) AS rank,
		       c.page_number, COALESCE(c.section_title, '')
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = 'completed'
		  AND to_tsvector('english', c.content) @@ plainto_tsquery('english', $1)
	`)
	args := []any{query}
	if len(documentIDs) > 0 {
		args = append(args, documentIDs)
		b.WriteString(fmt.Sprintf(" AND c.document_id::text = ANY($%d)", len(args)))
	}
	args = append(args, limit)
	b.WriteString(fmt.Sprintf(" ORDER BY rank DESC, c.chunk_index ASC LIMIT $%d", len(args)))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.DocumentName, &r.ChunkIndex, &r.Content,
			&r.Score, &r.PageNumber, &r.SectionTitle,
		); err != nil {
			return nil, err
		}
		r.SearchType = "text"
		out = append(out, r)
	}
	return out, rows.Err()
}

// Processing jobs

func (s *Store) CreateProcessingJob(ctx context.Context, job *models.ProcessingJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO processing_jobs (id, document_id, job_type, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := s.db.ExecContext(ctx, q, job.ID, job.DocumentID, job.JobType, job.Status, job.RetryCount)
	return wrapConstraint(err)
}

// ClaimJob marks the most recent open job for the document as processing and
// returns it. When redelivery finds no open row (the queue is at-least-once),
// a fresh one is created so every attempt leaves a record.
func (s *Store) ClaimJob(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	const q = `
		UPDATE processing_jobs
		SET status = 'processing', started_at = now()
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE document_id = $1 AND status IN ('pending', 'failed')
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, document_id, job_type, status, retry_count,
		          COALESCE(error_message, ''), started_at, completed_at, created_at
	`
	var j models.ProcessingJob
	err := s.db.QueryRowContext(ctx, q, documentID).Scan(
		&j.ID, &j.DocumentID, &j.JobType, &j.Status, &j.RetryCount,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt,
	)
	if err == nil {
		return &j, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	j = models.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		JobType:    "ingest",
		Status:     "processing",
	}
	const ins = `
		INSERT INTO processing_jobs (id, document_id, job_type, status, retry_count, started_at, created_at)
		VALUES ($1, $2, $3, 'processing', 0, now(), now())
	`
	if _, err := s.db.ExecContext(ctx, ins, j.ID, j.DocumentID, j.JobType); err != nil {
		return nil, wrapConstraint(err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	const q = `
		UPDATE processing_jobs
		SET status = 'completed', completed_at = now(), error_message = NULL
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, jobID)
	return err
}

func (s *Store) FailJob(ctx context.Context, jobID string, errMsg string, retryCount int) error {
	const q = `
		UPDATE processing_jobs
		SET status = 'failed', error_message = $2, retry_count = $3, completed_at = now()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, jobID, errMsg, retryCount)
	return err
}

// LatestJobRetryCount returns the highest retry count recorded for the
// document's jobs, 0 when it has none.
func (s *Store) LatestJobRetryCount(ctx context.Context, documentID string) (int, error) {
	const q = `
		SELECT COALESCE(MAX(retry_count), 0)
		FROM processing_jobs
		WHERE document_id = $1
	`
	var n int
	if err := s.db.QueryRowContext(ctx, q, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Search analytics

func (s *Store) RecordSearchQuery(ctx context.Context, q *models.SearchQuery) error {
	if q == nil {
		return errors.New("nil search query")
	}
	const ins = `
		INSERT INTO search_queries (id, query_text, search_type, result_count, execution_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := s.db.ExecContext(ctx, ins, q.ID, q.QueryText, q.SearchType, q.ResultCount, q.ExecutionTimeMs)
	return err
}
