package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/vectorstore"
)

const testDim = 3

// MockAdapter is a mock implementation of provider.Adapter
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Embed(ctx context.Context, texts []string, cfg domain.ProviderConfig) ([][]float32, error) {
	args := m.Called(ctx, texts, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// allow per-call vectors keyed off the batch contents
	if fn, ok := args.Get(0).(func([]string) [][]float32); ok {
		return fn(texts), args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockAdapter) Generate(ctx context.Context, prompt string, cfg domain.ProviderConfig) (string, error) {
	args := m.Called(ctx, prompt, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockAdapter) GenerateStream(ctx context.Context, prompt string, cfg domain.ProviderConfig) (provider.Stream, error) {
	args := m.Called(ctx, prompt, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Stream), args.Error(1)
}

func (m *MockAdapter) ListModels(ctx context.Context, cfg domain.ProviderConfig) ([]string, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockArchiver) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// stubRegistry resolves every config to one adapter and optionally rejects
// the model.
type stubRegistry struct {
	adapter  provider.Adapter
	modelErr error
}

func (r *stubRegistry) ForConfig(cfg domain.ProviderConfig) (provider.Adapter, error) {
	return r.adapter, nil
}

func (r *stubRegistry) ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error {
	return r.modelErr
}

func testEmbeddingConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Role:     domain.ProviderRoleEmbedding,
		Provider: domain.ProviderOpenAI,
		Model:    "text-embedding-3-small",
		APIKey:   "sk-test",
	}
}

// uniformVectors returns one identical unit vector per input text.
func uniformVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out
}

// embedUniform wires a mock Embed call returning one vector per text.
func embedUniform(adapter *MockAdapter) {
	adapter.On("Embed", mock.Anything, mock.Anything, mock.Anything).
		Return(func(texts []string) [][]float32 { return uniformVectors(texts) }, nil)
}

func newTestService(t *testing.T, adapter provider.Adapter) (*Service, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewLocalStore(t.TempDir(), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(store, &stubRegistry{adapter: adapter}, chunker.SplitConfig{Window: 40, Overlap: 10})
	return svc, store
}

func TestService_AddDocument_Success(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	embedUniform(adapter)

	svc, store := newTestService(t, adapter)

	content := []byte("paris is the capital of france and berlin is the capital of germany and rome is the capital of italy")

	doc, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "cities.txt",
		Content:   content,
		Embedding: testEmbeddingConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)
	assert.Equal(t, len([]rune(string(content))), doc.RawTextLength)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DocumentCount)
	assert.Equal(t, int64(doc.ChunkCount), stats.VectorCount)
}

func TestService_AddDocument_UnsupportedExtension(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, new(MockAdapter))

	_, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "malware.exe",
		Content:   []byte("binary"),
		Embedding: testEmbeddingConfig(),
	})
	assert.ErrorIs(t, err, domain.ErrExtraction)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DocumentCount)
}

func TestService_AddDocument_EmptyContent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, new(MockAdapter))

	_, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "empty.txt",
		Content:   nil,
		Embedding: testEmbeddingConfig(),
	})
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
}

func TestService_AddDocument_UnsupportedModel(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewLocalStore(t.TempDir(), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(store, &stubRegistry{
		adapter:  new(MockAdapter),
		modelErr: domain.ErrUnsupportedModel,
	}, chunker.DefaultSplitConfig())

	_, err = svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "doc.txt",
		Content:   []byte("some text"),
		Embedding: testEmbeddingConfig(),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedModel)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DocumentCount)
}

func TestService_AddDocument_EmbedFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	adapter.On("Embed", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainErrorWithCause(domain.ErrCodeNetwork, "provider request failed", errors.New("boom")))

	svc, store := newTestService(t, adapter)

	_, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "doc.txt",
		Content:   []byte("some text to embed"),
		Embedding: testEmbeddingConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIngestionRollback)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	// the document is kept as failed but no vectors were indexed
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DocumentCount)
	assert.Equal(t, int64(0), stats.VectorCount)

	page, err := svc.ListDocuments(ctx, ListDocumentsInput{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.DocumentStatusFailed, page.Items[0].Status)
	assert.NotEmpty(t, page.Items[0].FailureReason)
}

func TestService_AddDocument_DimensionMismatchRollsBack(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	adapter.On("Embed", mock.Anything, mock.Anything, mock.Anything).
		Return(func(texts []string) [][]float32 {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0, 0, 0, 0} // wrong length for the index
			}
			return out
		}, nil)

	svc, store := newTestService(t, adapter)

	_, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "doc.txt",
		Content:   []byte("some text to embed"),
		Embedding: testEmbeddingConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIngestionRollback)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)
}

func TestService_AddDocument_ArchiverFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	embedUniform(adapter)

	archiver := new(MockArchiver)
	archiver.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("bucket offline"))

	svc, _ := newTestService(t, adapter)
	svc.WithArchiver(archiver)

	doc, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "doc.txt",
		Content:   []byte("archivable text"),
		Embedding: testEmbeddingConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, doc.Status)
	archiver.AssertExpectations(t)
}

func TestService_DeleteDocument_RemovesArchiveCopy(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	embedUniform(adapter)

	archiver := new(MockArchiver)
	archiver.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	archiver.On("DeleteObject", mock.Anything, mock.Anything).Return(nil)

	svc, store := newTestService(t, adapter)
	svc.WithArchiver(archiver)

	doc, err := svc.AddDocument(ctx, AddDocumentInput{
		Filename:  "doc.txt",
		Content:   []byte("short text"),
		Embedding: testEmbeddingConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(ctx, doc.ID))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DocumentCount)
	assert.Equal(t, int64(0), stats.VectorCount)
	archiver.AssertCalled(t, "DeleteObject", mock.Anything, "documents/"+doc.ID+"/doc.txt")
}

func TestService_DeleteDocument_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, new(MockAdapter))

	err := svc.DeleteDocument(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestService_ListDocuments_Pagination(t *testing.T) {
	ctx := context.Background()
	adapter := new(MockAdapter)
	embedUniform(adapter)

	svc, _ := newTestService(t, adapter)

	for i := 0; i < 3; i++ {
		_, err := svc.AddDocument(ctx, AddDocumentInput{
			Filename:  "doc.txt",
			Content:   []byte("tiny"),
			Embedding: testEmbeddingConfig(),
		})
		require.NoError(t, err)
	}

	page1, err := svc.ListDocuments(ctx, ListDocumentsInput{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.Cursor)

	page2, err := svc.ListDocuments(ctx, ListDocumentsInput{Limit: 2, Cursor: page1.Cursor})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
	assert.False(t, page2.HasMore)
	assert.Empty(t, page2.Cursor)
}

func TestService_ListDocuments_InvalidCursor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, new(MockAdapter))

	_, err := svc.ListDocuments(ctx, ListDocumentsInput{Cursor: "not-base64!"})
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
}
