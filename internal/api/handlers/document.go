package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/api/middleware"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/knowledge"
)

type DocumentService interface {
	AddDocument(ctx context.Context, input knowledge.AddDocumentInput) (*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, input knowledge.ListDocumentsInput) (*knowledge.ListDocumentsOutput, error)
	DeleteDocument(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.DocumentStats, error)
}

type DocumentHandler struct {
	svc            DocumentService
	maxUploadBytes int64
}

func NewDocumentHandler(svc DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

type DocumentResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	SizeBytes     int64  `json:"size_bytes"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	RawTextLength int    `json:"raw_text_length"`
	ChunkCount    int    `json:"chunk_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:            d.ID,
		Filename:      d.Filename,
		SizeBytes:     d.SizeBytes,
		Description:   d.Description,
		Status:        string(d.Status),
		FailureReason: d.FailureReason,
		RawTextLength: d.RawTextLength,
		ChunkCount:    d.ChunkCount,
		CreatedAt:     d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Upload ingests one multipart file. The embedding config comes from the
// request scope, never from the form.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r.Context())
	if scope == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		api.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(content)) > h.maxUploadBytes {
		api.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	input := knowledge.AddDocumentInput{
		Filename:    header.Filename,
		Description: r.FormValue("description"),
		Content:     content,
		ContentType: header.Header.Get("Content-Type"),
		Embedding:   scope.Embedding,
	}

	doc, err := h.svc.AddDocument(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListDocuments(r.Context(), knowledge.ListDocumentsInput{
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(output.Items))
	for i, d := range output.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type StatsResponse struct {
	DocumentCount  int64 `json:"document_count"`
	VectorCount    int64 `json:"vector_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, StatsResponse{
		DocumentCount:  stats.DocumentCount,
		VectorCount:    stats.VectorCount,
		TotalSizeBytes: stats.TotalSizeBytes,
	})
}
