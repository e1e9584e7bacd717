//go:build integration

package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/pagination"
	"github.com/askbase/askbase/internal/testutil"
)

func newPostgresTestStore(ctx context.Context, t *testing.T) *PostgresStore {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)

	store, err := NewPostgresStore(pool, testDim)
	require.NoError(t, err)
	return store
}

func TestPostgresStore_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(ctx, t)

	doc := newTestDocument("report.pdf")
	require.NoError(t, store.CreateDocument(ctx, doc))

	retrieved, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, retrieved.Filename)
	assert.Equal(t, domain.DocumentStatusPending, retrieved.Status)

	doc.MarkProcessed(4096, 5, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.UpdateDocument(ctx, doc))

	retrieved, err = store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, retrieved.Status)
	assert.Equal(t, 5, retrieved.ChunkCount)

	_, err = store.GetDocument(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestPostgresStore_SearchRankingAndTies(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(ctx, t)

	doc := newTestDocument("cities.txt")
	require.NoError(t, store.CreateDocument(ctx, doc))

	chunks := []domain.Chunk{
		newTestChunk(doc.ID, 0, "paris is the capital of france", []float32{1, 0, 0}),
		newTestChunk(doc.ID, 1, "also about paris", []float32{1, 0, 0}),
		newTestChunk(doc.ID, 2, "berlin is the capital of germany", []float32{0, 1, 0}),
	}
	doc.MarkProcessed(80, len(chunks), time.Now().UTC())
	require.NoError(t, store.UpsertChunks(ctx, doc, chunks))

	result, err := store.Search(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	// equal scores fall back to ordinal order
	assert.Equal(t, 0, result.Chunks[0].Ordinal)
	assert.Equal(t, 1, result.Chunks[1].Ordinal)
	assert.Equal(t, 2, result.Chunks[2].Ordinal)
	assert.Greater(t, result.Scores[0], result.Scores[2])

	// topK larger than the corpus returns everything
	result, err = store.Search(ctx, []float32{1, 0, 0}, 100, nil)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 3)
}

func TestPostgresStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(ctx, t)

	doc := newTestDocument("bad.txt")
	require.NoError(t, store.CreateDocument(ctx, doc))

	doc.MarkProcessed(9, 1, time.Now().UTC())
	err := store.UpsertChunks(ctx, doc, []domain.Chunk{
		newTestChunk(doc.ID, 0, "bad chunk", []float32{1, 0}),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)

	_, err = store.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPostgresStore_DeleteCascadesAndStats(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(ctx, t)

	doc := newTestDocument("gone.txt")
	require.NoError(t, store.CreateDocument(ctx, doc))
	doc.MarkProcessed(20, 2, time.Now().UTC())
	require.NoError(t, store.UpsertChunks(ctx, doc, []domain.Chunk{
		newTestChunk(doc.ID, 0, "chunk one", []float32{1, 0, 0}),
		newTestChunk(doc.ID, 1, "chunk two", []float32{0, 1, 0}),
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DocumentCount)
	assert.Equal(t, int64(2), stats.VectorCount)

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DocumentCount)
	assert.Equal(t, int64(0), stats.VectorCount)

	err = store.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestPostgresStore_ListDocuments_Pagination(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(ctx, t)

	base := time.Now().UTC().Truncate(time.Microsecond)
	var ids []string
	for i := 0; i < 4; i++ {
		doc := domain.NewDocument(uuid.NewString(), "doc.txt", 10, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateDocument(ctx, doc))
		ids = append(ids, doc.ID)
	}

	page1, err := store.ListDocuments(ctx, nil, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, ids[3], page1[0].ID)

	cursor, err := pagination.DecodeCursor(pagination.EncodeCursor(page1[2].ID, page1[2].CreatedAt))
	require.NoError(t, err)

	page2, err := store.ListDocuments(ctx, cursor, 3)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, ids[0], page2[0].ID)
}
