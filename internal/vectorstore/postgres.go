package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/pagination"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so the same statement
// helpers run inside and outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the pgvector-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(pool *pgxpool.Pool, dimension int) (*PostgresStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	return &PostgresStore{pool: pool, dim: dimension}, nil
}

func (s *PostgresStore) Dimension() int { return s.dim }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, size_bytes, description, status, failure_reason, raw_text_length, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.Filename, doc.SizeBytes, doc.Description, doc.Status, doc.FailureReason, doc.RawTextLength, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	return updateDocument(ctx, s.pool, doc)
}

func updateDocument(ctx context.Context, db dbtx, doc *domain.Document) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE documents
		 SET filename = $1, size_bytes = $2, description = $3, status = $4, failure_reason = $5, raw_text_length = $6, chunk_count = $7, updated_at = $8
		 WHERE id = $9`,
		doc.Filename, doc.SizeBytes, doc.Description, doc.Status, doc.FailureReason, doc.RawTextLength, doc.ChunkCount, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, size_bytes, description, status, failure_reason, raw_text_length, chunk_count, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Filename, &d.SizeBytes, &d.Description, &d.Status, &d.FailureReason, &d.RawTextLength, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, filename, size_bytes, description, status, failure_reason, raw_text_length, chunk_count, created_at, updated_at
			 FROM documents
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, filename, size_bytes, description, status, failure_reason, raw_text_length, chunk_count, created_at, updated_at
			 FROM documents
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentRows(rows)
}

// UpsertChunks rewrites the document row and replaces its chunks inside one
// transaction. A failed embedding batch therefore never leaves a partially
// indexed document behind.
func (s *PostgresStore) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	for i := range chunks {
		if err := domain.ValidateChunk(&chunks[i]); err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk", err)
		}
		if err := checkDimension(s.dim, chunks[i].Embedding); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateDocument(ctx, tx, doc); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		metadata := c.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, ordinal, content, embedding, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.DocumentID, c.Ordinal, c.Text, pgvector.NewVector(c.Embedding), metadata, now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	// chunks cascade via the foreign key
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, queryVector []float32, topK int, filter *SearchFilter) (*domain.RetrievalResult, error) {
	if err := checkDimension(s.dim, queryVector); err != nil {
		return nil, err
	}
	topK = clampTopK(topK)

	vec := pgvector.NewVector(queryVector)

	query := `
		SELECT id, document_id, ordinal, content, metadata,
		       1.0 - (embedding <=> $1) AS score
		FROM chunks`
	args := []interface{}{vec}

	if filter != nil && len(filter.DocumentIDs) > 0 {
		query += ` WHERE document_id = ANY($2)`
		args = append(args, filter.DocumentIDs)
	}

	query += fmt.Sprintf(`
		ORDER BY embedding <=> $1 ASC, ordinal ASC, document_id ASC
		LIMIT $%d`, len(args)+1)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domain.RetrievalResult{}
	for rows.Next() {
		var c domain.Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.Metadata, &score); err != nil {
			return nil, err
		}
		result.Chunks = append(result.Chunks, c)
		result.Scores = append(result.Scores, score)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*domain.DocumentStats, error) {
	var stats domain.DocumentStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM documents)`,
	).Scan(&stats.DocumentCount, &stats.VectorCount, &stats.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.SizeBytes, &d.Description, &d.Status, &d.FailureReason, &d.RawTextLength, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, &d)
	}
	return results, rows.Err()
}
