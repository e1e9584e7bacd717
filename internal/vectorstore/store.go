// Package vectorstore persists (chunk text, embedding, metadata) tuples and
// answers nearest-neighbor queries. Two interchangeable backends exist: a
// Postgres/pgvector index for managed deployments and an embedded badger
// index for single-process ones. Both satisfy the same pre/postconditions so
// the retrieval pipeline never knows which one it is talking to.
package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/pagination"
)

// Store is the persistence contract shared by both backends.
//
// Similarity is cosine; results are ordered by descending score with ties
// broken by ascending chunk ordinal (earlier chunk wins) and then document
// ID, so repeated searches over a fixed corpus are deterministic.
//
// The index dimension is fixed at creation time. Vectors of any other
// length are rejected with DimensionMismatchError and leave the index
// unchanged; switching embedding models therefore requires a full re-index.
type Store interface {
	// CreateDocument records a new (normally pending) document.
	CreateDocument(ctx context.Context, doc *domain.Document) error
	// UpdateDocument rewrites a document's metadata row.
	UpdateDocument(ctx context.Context, doc *domain.Document) error
	// GetDocument fetches one document or ErrDocumentNotFound.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	// ListDocuments pages documents newest-first.
	ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.Document, error)
	// UpsertChunks atomically replaces a document's chunks and metadata.
	// On failure nothing is written: a concurrent reader sees either the
	// previous state or the new one, never a mixture.
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	// DeleteDocument removes a document and all of its chunks, atomically.
	DeleteDocument(ctx context.Context, id string) error
	// Search returns the topK most similar chunks. topK is clamped to
	// [1, vectorCount]; an empty corpus yields an empty result.
	Search(ctx context.Context, queryVector []float32, topK int, filter *SearchFilter) (*domain.RetrievalResult, error)
	// Stats reports corpus totals.
	Stats(ctx context.Context) (*domain.DocumentStats, error)
	// Dimension is the index's fixed embedding dimension.
	Dimension() int
	// Close releases the backend.
	Close() error
}

// SearchFilter optionally restricts a search to specific documents.
type SearchFilter struct {
	DocumentIDs []string
}

// DefaultDimension matches text-embedding-3-small and ada-002.
const DefaultDimension = 1536

func checkDimension(expected int, vec []float32) error {
	if len(vec) != expected {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeDimensionMismatch,
			"embedding dimension does not match index",
			fmt.Errorf("index dimension %d, vector dimension %d", expected, len(vec)),
		)
	}
	return nil
}

func clampTopK(topK int) int {
	if topK < 1 {
		return 1
	}
	return topK
}

// cosineSimilarity is the ranking metric for the embedded backend. The
// Postgres backend computes the same quantity with pgvector's <=> operator.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
