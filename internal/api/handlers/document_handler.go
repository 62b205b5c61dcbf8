package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paul268484/document-mining/internal/config"
	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

const maxUploadBytes = 50 << 20

// DocumentStore is the persistence surface the document endpoints need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	CreateProcessingJob(ctx context.Context, job *models.ProcessingJob) error
}

type DocumentHandler struct {
	store DocumentStore
	queue core.JobQueue
	cfg   *config.Config
}

func NewDocumentHandler(store DocumentStore, queue core.JobQueue, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, queue: queue, cfg: cfg}
}

// UploadDocument accepts a multipart upload, saves the file under the upload
// directory, registers the document as pending and enqueues an ingestion job.
// Processing happens asynchronously; the response carries the pending record.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// Base strips any path components a hostile client may send.
	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	docID := uuid.NewString()
	destPath := filepath.Join(h.cfg.UploadDir, fmt.Sprintf("%s_%s", docID, fileName))

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "upload directory unavailable")
		return
	}
	dest, err := os.Create(destPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		os.Remove(destPath)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          docID,
		FileName:    fileName,
		FilePath:    destPath,
		MimeType:    mimeType,
		Status:      models.StatusPending,
		UploadedAt:  now,
		LastUpdated: now,
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		os.Remove(destPath)
		slog.Error("document insert failed",
			slog.String("document_id", docID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to register document")
		return
	}

	job := &models.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: docID,
		JobType:    "ingest",
		Status:     models.StatusPending,
		CreatedAt:  now,
	}
	if err := h.store.CreateProcessingJob(ctx, job); err != nil {
		slog.Warn("processing job insert failed",
			slog.String("document_id", docID),
			slog.String("error", err.Error()))
	}

	// A failed push is not fatal: the document stays pending and the
	// stuck-document monitor requeues it on a later sweep.
	if err := h.queue.Push(ctx, &models.IngestJob{
		DocumentID: docID,
		FilePath:   destPath,
		MimeType:   mimeType,
		Timestamp:  now,
	}); err != nil {
		slog.Warn("ingest enqueue failed, monitor will requeue",
			slog.String("document_id", docID),
			slog.String("error", err.Error()))
	}

	slog.Info("document uploaded",
		slog.String("document_id", docID),
		slog.String("file_name", fileName),
		slog.String("mime_type", mimeType))

	writeJSON(w, http.StatusAccepted, doc)
}

// ListDocuments returns every document with its status and chunk count.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		slog.Error("document list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	})
}

// GetDocument returns one document by id.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		slog.Error("document lookup failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
