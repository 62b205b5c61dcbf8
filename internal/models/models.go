package models

import (
	"time"
)

// Document statuses. Transitions are pending -> processing -> completed|failed;
// failed -> pending happens only through the stuck-document monitor's bounded requeue.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document represents an uploaded document tracked through ingestion.
type Document struct {
	ID           string    `db:"id" json:"id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FilePath     string    `db:"file_path" json:"-"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Status       string    `db:"status" json:"status"`
	ChunkCount   int       `db:"chunk_count" json:"chunk_count"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
	LastUpdated  time.Time `db:"last_updated" json:"last_updated"`
}

// DocumentChunk represents one text fragment of a document. Embedding is nil
// while the vector is pending or its generation permanently failed; such
// chunks stay lexically searchable.
type DocumentChunk struct {
	ID            string            `db:"id" json:"id"`
	DocumentID    string            `db:"document_id" json:"document_id"`
	ChunkIndex    int               `db:"chunk_index" json:"chunk_index"`
	Content       string            `db:"content" json:"content"`
	ContentLength int               `db:"content_length" json:"content_length"`
	Embedding     []float32         `db:"embedding" json:"-"`
	PageNumber    *int              `db:"page_number" json:"page_number,omitempty"`
	SectionTitle  string            `db:"section_title" json:"section_title,omitempty"`
	Metadata      map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// ProcessingJob is the persisted record of one ingestion attempt for a document.
type ProcessingJob struct {
	ID           string     `db:"id" json:"id"`
	DocumentID   string     `db:"document_id" json:"document_id"`
	JobType      string     `db:"job_type" json:"job_type"`
	Status       string     `db:"status" json:"status"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IngestJob is the queue payload for one ingestion unit. The queue delivers
// at-least-once; everything downstream (chunk replace, status updates) is
// idempotent under redelivery.
type IngestJob struct {
	DocumentID string    `json:"documentId"`
	FilePath   string    `json:"filePath"`
	MimeType   string    `json:"mimeType"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retryCount"`
}

// EmbeddedChunk pairs a chunk holding a non-nil embedding with the name of
// its owning document, as needed by semantic scoring and citations.
type EmbeddedChunk struct {
	DocumentChunk
	DocumentName string `json:"document_name"`
}

// SearchResult is one scored chunk returned by the retrieval engine.
// SearchType is "text", "semantic" or "hybrid" depending on which
// sub-search(es) produced it.
type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	SearchType   string  `json:"search_type"`
	PageNumber   *int    `json:"page_number,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
}

// SearchQuery is an append-only analytics record; retrieval logic never reads it.
type SearchQuery struct {
	ID              string    `db:"id" json:"id"`
	QueryText       string    `db:"query_text" json:"query_text"`
	SearchType      string    `db:"search_type" json:"search_type"`
	ResultCount     int       `db:"result_count" json:"result_count"`
	ExecutionTimeMs int64     `db:"execution_time_ms" json:"execution_time_ms"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
