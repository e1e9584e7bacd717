package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/pagination"
)

// LocalStore is the embedded Store for single-process deployments. It keeps
// documents and chunks in a badgerhold-wrapped badger database and scores
// similarity with a full scan, which is fine at the corpus sizes a local
// deployment sees.
type LocalStore struct {
	store *badgerhold.Store
	dim   int
}

// storedDocument is the badgerhold record for a document.
type storedDocument struct {
	ID            string `badgerhold:"key"`
	Filename      string
	SizeBytes     int64
	Description   string
	Status        string
	FailureReason string
	RawTextLength int
	ChunkCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// storedChunk is the badgerhold record for one embedded chunk.
type storedChunk struct {
	ID         string `badgerhold:"key"`
	DocumentID string `badgerholdIndex:"DocumentID"`
	Ordinal    int
	Text       string
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// NewLocalStore opens (or creates) the database under dir.
func NewLocalStore(dir string, dimension int) (*LocalStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &LocalStore{store: store, dim: dimension}, nil
}

func (s *LocalStore) Dimension() int { return s.dim }

func (s *LocalStore) Close() error {
	return s.store.Close()
}

func (s *LocalStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}
	if err := s.store.Insert(doc.ID, toStoredDocument(doc)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("document %s already exists", doc.ID)
		}
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *LocalStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	err := s.store.Update(doc.ID, toStoredDocument(doc))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrDocumentNotFound
	}
	return err
}

func (s *LocalStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var rec storedDocument
	if err := s.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return fromStoredDocument(&rec), nil
}

func (s *LocalStore) ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 20
	}

	var recs []storedDocument
	if err := s.store.Find(&recs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	// newest first, ties broken by ID for a stable page order
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})

	results := make([]*domain.Document, 0, limit)
	for i := range recs {
		if cursor != nil && !afterCursor(&recs[i], cursor) {
			continue
		}
		results = append(results, fromStoredDocument(&recs[i]))
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// afterCursor reports whether rec sorts strictly after the cursor position
// in (created_at DESC, id DESC) order.
func afterCursor(rec *storedDocument, cursor *pagination.Cursor) bool {
	if rec.CreatedAt.Before(cursor.Timestamp) {
		return true
	}
	return rec.CreatedAt.Equal(cursor.Timestamp) && rec.ID < cursor.LastID
}

// UpsertChunks rewrites the document record and replaces its chunks in a
// single badger transaction, mirroring the transactional guarantee of the
// Postgres backend.
func (s *LocalStore) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	for i := range chunks {
		if err := domain.ValidateChunk(&chunks[i]); err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk", err)
		}
		if err := checkDimension(s.dim, chunks[i].Embedding); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	return s.store.Badger().Update(func(tx *badger.Txn) error {
		var existing storedDocument
		if err := s.store.TxGet(tx, doc.ID, &existing); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrDocumentNotFound
			}
			return err
		}
		if err := s.store.TxUpdate(tx, doc.ID, toStoredDocument(doc)); err != nil {
			return err
		}
		if err := s.store.TxDeleteMatching(tx, &storedChunk{},
			badgerhold.Where("DocumentID").Eq(doc.ID).Index("DocumentID")); err != nil {
			return err
		}
		for _, c := range chunks {
			rec := &storedChunk{
				ID:         c.ID,
				DocumentID: c.DocumentID,
				Ordinal:    c.Ordinal,
				Text:       c.Text,
				Embedding:  c.Embedding,
				Metadata:   c.Metadata,
				CreatedAt:  now,
			}
			if err := s.store.TxUpsert(tx, rec.ID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *LocalStore) DeleteDocument(ctx context.Context, id string) error {
	return s.store.Badger().Update(func(tx *badger.Txn) error {
		if err := s.store.TxDelete(tx, id, &storedDocument{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrDocumentNotFound
			}
			return err
		}
		return s.store.TxDeleteMatching(tx, &storedChunk{},
			badgerhold.Where("DocumentID").Eq(id).Index("DocumentID"))
	})
}

func (s *LocalStore) Search(ctx context.Context, queryVector []float32, topK int, filter *SearchFilter) (*domain.RetrievalResult, error) {
	if err := checkDimension(s.dim, queryVector); err != nil {
		return nil, err
	}
	topK = clampTopK(topK)

	allowed := map[string]bool{}
	if filter != nil {
		for _, id := range filter.DocumentIDs {
			allowed[id] = true
		}
	}

	type scored struct {
		chunk domain.Chunk
		score float64
	}
	var candidates []scored

	err := s.store.ForEach(badgerhold.Where("ID").Ne(""), func(rec *storedChunk) error {
		if len(allowed) > 0 && !allowed[rec.DocumentID] {
			return nil
		}
		if len(rec.Embedding) != s.dim {
			return nil
		}
		candidates = append(candidates, scored{
			chunk: domain.Chunk{
				ID:         rec.ID,
				DocumentID: rec.DocumentID,
				Ordinal:    rec.Ordinal,
				Text:       rec.Text,
				Metadata:   rec.Metadata,
			},
			score: cosineSimilarity(queryVector, rec.Embedding),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].chunk.Ordinal != candidates[j].chunk.Ordinal {
			return candidates[i].chunk.Ordinal < candidates[j].chunk.Ordinal
		}
		return candidates[i].chunk.DocumentID < candidates[j].chunk.DocumentID
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}

	result := &domain.RetrievalResult{}
	for _, c := range candidates[:topK] {
		result.Chunks = append(result.Chunks, c.chunk)
		result.Scores = append(result.Scores, c.score)
	}
	return result, nil
}

func (s *LocalStore) Stats(ctx context.Context) (*domain.DocumentStats, error) {
	var stats domain.DocumentStats

	var docs []storedDocument
	if err := s.store.Find(&docs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	stats.DocumentCount = int64(len(docs))
	for i := range docs {
		stats.TotalSizeBytes += docs[i].SizeBytes
	}

	err := s.store.ForEach(badgerhold.Where("ID").Ne(""), func(rec *storedChunk) error {
		stats.VectorCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	return &stats, nil
}

func toStoredDocument(d *domain.Document) *storedDocument {
	return &storedDocument{
		ID:            d.ID,
		Filename:      d.Filename,
		SizeBytes:     d.SizeBytes,
		Description:   d.Description,
		Status:        string(d.Status),
		FailureReason: d.FailureReason,
		RawTextLength: d.RawTextLength,
		ChunkCount:    d.ChunkCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromStoredDocument(rec *storedDocument) *domain.Document {
	return &domain.Document{
		ID:            rec.ID,
		Filename:      rec.Filename,
		SizeBytes:     rec.SizeBytes,
		Description:   rec.Description,
		Status:        domain.DocumentStatus(rec.Status),
		FailureReason: rec.FailureReason,
		RawTextLength: rec.RawTextLength,
		ChunkCount:    rec.ChunkCount,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
