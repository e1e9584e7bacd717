// Package knowledge owns the document ingestion lifecycle: extraction,
// chunking, embedding and indexing, plus document listing, deletion and
// corpus stats.
package knowledge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/pagination"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/telemetry"
	"github.com/askbase/askbase/internal/vectorstore"
)

// embedBatchSize bounds the number of chunk texts sent per embedding call.
const embedBatchSize = 64

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Archiver stores raw uploaded files outside the vector index. Archiving is
// best-effort: the index is the source of truth and ingestion never fails
// because the archive copy did.
type Archiver interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// Registry resolves provider adapters and validates models.
type Registry interface {
	ForConfig(cfg domain.ProviderConfig) (provider.Adapter, error)
	ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error
}

// Service handles business logic for knowledge base documents.
type Service struct {
	store    vectorstore.Store
	registry Registry
	archiver Archiver
	splitCfg chunker.SplitConfig
	uuidGen  UUIDGenerator
}

// NewService creates a new Service instance.
func NewService(store vectorstore.Store, registry Registry, splitCfg chunker.SplitConfig) *Service {
	return &Service{
		store:    store,
		registry: registry,
		splitCfg: splitCfg,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// WithArchiver attaches an optional raw-file archiver.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

// WithUUIDGenerator overrides UUID generation (for testing).
func (s *Service) WithUUIDGenerator(g UUIDGenerator) *Service {
	s.uuidGen = g
	return s
}

// AddDocumentInput is the input for ingesting one uploaded file.
type AddDocumentInput struct {
	Filename    string
	Description string
	Content     []byte
	ContentType string
	Embedding   domain.ProviderConfig
}

// AddDocument runs the full ingestion lifecycle for one file. The document
// is recorded as pending first, then either all of its chunks are indexed
// and it becomes processed, or nothing is indexed and it becomes failed.
// The vector count never reflects a partial ingestion.
func (s *Service) AddDocument(ctx context.Context, input AddDocumentInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "knowledge.AddDocument", telemetry.SpanAttributes{
		Provider:  string(input.Embedding.Provider),
		Model:     input.Embedding.Model,
		Operation: "ingest",
	})
	defer span.End()

	if !chunker.IsSupported(input.Filename) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"unsupported file type", fmt.Errorf("filename %q", input.Filename))
	}
	if len(input.Content) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "uploaded file is empty")
	}
	if err := domain.ValidateProviderConfig(input.Embedding); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding config", err)
	}
	if err := s.registry.ValidateModel(ctx, input.Embedding); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := domain.NewDocument(s.uuidGen.NewString(), input.Filename, int64(len(input.Content)), now)
	doc.Description = input.Description

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if s.archiver != nil {
		if err := s.archiver.PutObject(ctx, archiveKey(doc), input.Content, input.ContentType); err != nil {
			log.Printf("archive upload failed for document %s: %v", doc.ID, err)
		}
	}

	text, err := chunker.ExtractText(input.Content, input.Filename)
	if err != nil {
		return nil, s.failDocument(ctx, doc, err)
	}

	pieces := chunker.Split(text, s.splitCfg)
	if len(pieces) == 0 {
		// readable file with no extractable text, e.g. a scanned PDF
		doc.MarkProcessed(0, 0, time.Now().UTC())
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	chunks, err := s.embedChunks(ctx, doc.ID, pieces, input.Embedding)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeIngestionRollback,
			"ingestion failed and was rolled back", s.failDocument(ctx, doc, err))
	}

	doc.MarkProcessed(len([]rune(text)), len(chunks), time.Now().UTC())
	if err := s.store.UpsertChunks(ctx, doc, chunks); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeIngestionRollback,
			"ingestion failed and was rolled back", s.failDocument(ctx, doc, err))
	}

	return doc, nil
}

func (s *Service) embedChunks(ctx context.Context, documentID string, pieces []string, cfg domain.ProviderConfig) ([]domain.Chunk, error) {
	adapter, err := s.registry.ForConfig(cfg)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		vectors, err := adapter.Embed(ctx, batch, cfg)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(batch), len(vectors))
		}

		for i, vec := range vectors {
			chunks = append(chunks, domain.Chunk{
				ID:         s.uuidGen.NewString(),
				DocumentID: documentID,
				Ordinal:    start + i,
				Text:       batch[i],
				Embedding:  vec,
			})
		}
	}
	return chunks, nil
}

// failDocument marks the document failed and returns the original error.
func (s *Service) failDocument(ctx context.Context, doc *domain.Document, cause error) error {
	doc.MarkFailed(cause.Error(), time.Now().UTC())
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		log.Printf("failed to mark document %s as failed: %v", doc.ID, err)
	}
	telemetry.CaptureError(ctx, cause)
	return cause
}

// GetDocument fetches one document.
func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// ListDocumentsInput selects a page of documents.
type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

// ListDocumentsOutput is one page of documents, newest first.
type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// ListDocuments pages documents newest-first with an opaque cursor.
func (s *Service) ListDocuments(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	// fetch one extra row to detect a next page
	items, err := s.store.ListDocuments(ctx, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &ListDocumentsOutput{
		Items:   items,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

// DeleteDocument removes a document, its chunks, and its archived copy.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}

	if s.archiver != nil {
		if err := s.archiver.DeleteObject(ctx, archiveKey(doc)); err != nil {
			log.Printf("archive delete failed for document %s: %v", doc.ID, err)
		}
	}
	return nil
}

// Stats reports corpus totals.
func (s *Service) Stats(ctx context.Context) (*domain.DocumentStats, error) {
	return s.store.Stats(ctx)
}

func archiveKey(doc *domain.Document) string {
	return fmt.Sprintf("documents/%s/%s", doc.ID, doc.Filename)
}
