package rag

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/knowledge"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/vectorstore"
)

const testDim = 3

// fakeAdapter embeds deterministically (texts mentioning the test topic land
// near the topical query vector) and generates from scripted deltas.
type fakeAdapter struct {
	deltas      []string
	streamErr   error // returned after deltas are exhausted; nil means EOF
	generateOut string
	embedErr    error
	slowAfter   int // stall the stream after this many deltas when > 0
}

func topicVector(text string) []float32 {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "paris") || strings.Contains(lower, "francia") {
		return []float32{1, 0, 0}
	}
	return []float32{0, 1, 0}
}

func (f *fakeAdapter) Embed(ctx context.Context, texts []string, cfg domain.ProviderConfig) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = topicVector(text)
	}
	return out, nil
}

func (f *fakeAdapter) Generate(ctx context.Context, prompt string, cfg domain.ProviderConfig) (string, error) {
	if f.generateOut != "" {
		return f.generateOut, nil
	}
	return strings.Join(f.deltas, ""), nil
}

func (f *fakeAdapter) GenerateStream(ctx context.Context, prompt string, cfg domain.ProviderConfig) (provider.Stream, error) {
	return &scriptedStream{
		deltas:    f.deltas,
		err:       f.streamErr,
		slowAfter: f.slowAfter,
		closedCh:  make(chan struct{}),
	}, nil
}

func (f *fakeAdapter) ListModels(ctx context.Context, cfg domain.ProviderConfig) ([]string, error) {
	return []string{cfg.Model}, nil
}

type scriptedStream struct {
	deltas    []string
	err       error
	slowAfter int
	pos       int
	closedCh  chan struct{}
	closeOnce sync.Once
}

func (s *scriptedStream) Recv() (string, error) {
	if s.slowAfter > 0 && s.pos >= s.slowAfter {
		// simulate a silent connection until the stream is closed
		<-s.closedCh
		return "", domain.ErrIncompleteStream
	}
	if s.pos < len(s.deltas) {
		d := s.deltas[s.pos]
		s.pos++
		return d, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closedCh) })
	return nil
}

type fakeRegistry struct {
	adapter provider.Adapter
}

func (r *fakeRegistry) ForConfig(cfg domain.ProviderConfig) (provider.Adapter, error) {
	return r.adapter, nil
}

func (r *fakeRegistry) ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error {
	return nil
}

// catalogRegistry rejects one model name and records which roles were checked.
type catalogRegistry struct {
	adapter     provider.Adapter
	unsupported string
	checked     []domain.ProviderRole
}

func (r *catalogRegistry) ForConfig(cfg domain.ProviderConfig) (provider.Adapter, error) {
	return r.adapter, nil
}

func (r *catalogRegistry) ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error {
	r.checked = append(r.checked, cfg.Role)
	if cfg.Model == r.unsupported {
		return domain.NewDomainError(domain.ErrCodeUnsupportedModel, "model is not supported by provider")
	}
	return nil
}

func embeddingConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Role:     domain.ProviderRoleEmbedding,
		Provider: domain.ProviderOpenAI,
		Model:    "text-embedding-3-small",
		APIKey:   "sk-test",
	}
}

func generationConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Role:     domain.ProviderRoleGeneration,
		Provider: domain.ProviderOpenAI,
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
	}
}

func newTestPipeline(t *testing.T, adapter provider.Adapter, opts Options) (*Pipeline, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewLocalStore(t.TempDir(), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewPipeline(store, &fakeRegistry{adapter: adapter}, opts), store
}

func drain(t *testing.T, stream *AnswerStream) (string, error) {
	t.Helper()
	var b strings.Builder
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(delta)
	}
}

func queryInput(question string) QueryInput {
	return QueryInput{
		Question:   question,
		Embedding:  embeddingConfig(),
		Generation: generationConfig(),
	}
}

func TestPipeline_Ask_EmptyCorpusCompletes(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{deltas: []string{"I have ", "no documents."}}
	pipeline, _ := newTestPipeline(t, adapter, Options{})

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, stream.EmptyCorpus())
	assert.Empty(t, stream.Sources())

	answer, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "I have no documents.", answer)
	assert.Equal(t, StateCompleted, stream.State())
	assert.False(t, stream.Partial())
}

func TestPipeline_Ask_IngestionThenRetrieval(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{deltas: []string{"Paris."}}
	pipeline, store := newTestPipeline(t, adapter, Options{})

	svc := knowledge.NewService(store, &fakeRegistry{adapter: adapter},
		chunker.SplitConfig{Window: 50, Overlap: 10})
	_, err := svc.AddDocument(ctx, knowledge.AddDocumentInput{
		Filename:  "francia.txt",
		Content:   []byte("The capital of Francia is Paris. Unrelated filler text about weather patterns and such."),
		Embedding: embeddingConfig(),
	})
	require.NoError(t, err)

	stream, err := pipeline.Ask(ctx, queryInput("What is the capital of Francia?"))
	require.NoError(t, err)
	defer stream.Close()

	require.False(t, stream.EmptyCorpus())
	sources := stream.Sources()
	require.NotEmpty(t, sources)

	found := false
	for i, c := range sources {
		if i >= 3 {
			break
		}
		if strings.Contains(c.Text, "Paris") {
			found = true
		}
	}
	assert.True(t, found, "a chunk containing Paris must rank in the top 3")

	answer, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
}

func TestPipeline_Ask_MidStreamDisconnectFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{
		deltas:    []string{"one ", "two "},
		streamErr: domain.ErrIncompleteStream, // connection dropped before the end marker
	}
	pipeline, _ := newTestPipeline(t, adapter, Options{})

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)
	defer stream.Close()

	partial, err := drain(t, stream)
	assert.Equal(t, "one two ", partial)
	assert.ErrorIs(t, err, domain.ErrIncompleteStream)
	assert.Equal(t, StateFailed, stream.State())
	assert.True(t, stream.Partial())

	// terminal state is sticky
	_, err = stream.Recv()
	assert.ErrorIs(t, err, domain.ErrIncompleteStream)
}

func TestPipeline_Ask_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{
		deltas:    []string{"one ", "two ", "never seen"},
		slowAfter: 2,
	}
	pipeline, _ := newTestPipeline(t, adapter, Options{DeltaTimeout: 50 * time.Millisecond})

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)
	defer stream.Close()

	partial, err := drain(t, stream)
	assert.Equal(t, "one two ", partial)
	assert.ErrorIs(t, err, domain.ErrIncompleteStream)
	assert.True(t, stream.Partial())
}

func TestPipeline_Ask_CancellationStopsUpstream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &fakeAdapter{deltas: []string{"one ", "two ", "three "}}
	pipeline, _ := newTestPipeline(t, adapter, Options{})

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)

	_, err = stream.Recv()
	require.NoError(t, err)

	cancel()
	_, err = stream.Recv()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, stream.State())
}

func TestPipeline_Ask_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{embedErr: domain.ErrAuth}
	pipeline, _ := newTestPipeline(t, adapter, Options{})

	_, err := pipeline.Ask(ctx, queryInput("hello"))
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestPipeline_Ask_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	pipeline, _ := newTestPipeline(t, &fakeAdapter{}, Options{})

	_, err := pipeline.Ask(ctx, QueryInput{
		Embedding:  embeddingConfig(),
		Generation: generationConfig(),
	})
	require.Error(t, err)

	bad := queryInput("hello")
	bad.Embedding.APIKey = ""
	_, err = pipeline.Ask(ctx, bad)
	require.Error(t, err)
}

func TestPipeline_Ask_RejectsUnsupportedEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{embedErr: errors.New("embed must not run")}
	store, err := vectorstore.NewLocalStore(t.TempDir(), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := &catalogRegistry{adapter: adapter, unsupported: "text-embedding-3-small"}
	pipeline := NewPipeline(store, registry, Options{})

	_, err = pipeline.Ask(ctx, queryInput("hello"))
	var derr *domain.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.ErrCodeUnsupportedModel, derr.Code)
	assert.Equal(t, []domain.ProviderRole{domain.ProviderRoleEmbedding}, registry.checked)
}

func TestPipeline_Ask_ValidatesBothModels(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{deltas: []string{"ok"}}
	store, err := vectorstore.NewLocalStore(t.TempDir(), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := &catalogRegistry{adapter: adapter}
	pipeline := NewPipeline(store, registry, Options{})

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []domain.ProviderRole{
		domain.ProviderRoleEmbedding,
		domain.ProviderRoleGeneration,
	}, registry.checked)
}

func TestPipeline_Ask_CloseReleasesReader(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{deltas: []string{"one ", "two ", "three "}}
	pipeline, _ := newTestPipeline(t, adapter, Options{})

	before := runtime.NumGoroutine()

	stream, err := pipeline.Ask(ctx, queryInput("hello"))
	require.NoError(t, err)

	_, err = stream.Recv()
	require.NoError(t, err)

	// the reader goroutine is parked handing over the next delta; Close must
	// let it exit without waiting for the request context
	require.NoError(t, stream.Close())

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond, "reader goroutine still running after Close")
}

func TestPipeline_Answer_NonStreaming(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{generateOut: "Paris is the capital."}
	pipeline, store := newTestPipeline(t, adapter, Options{})

	doc := domain.NewDocument(uuid.NewString(), "francia.txt", 10, time.Now().UTC())
	require.NoError(t, store.CreateDocument(ctx, doc))
	doc.MarkProcessed(30, 1, time.Now().UTC())
	require.NoError(t, store.UpsertChunks(ctx, doc, []domain.Chunk{{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Ordinal:    0,
		Text:       "The capital of Francia is Paris.",
		Embedding:  []float32{1, 0, 0},
	}}))

	answer, err := pipeline.Answer(ctx, queryInput("Where is Paris?"))
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", answer.Text)
	assert.False(t, answer.EmptyCorpus)
	require.Len(t, answer.Sources, 1)
	assert.Contains(t, answer.Sources[0].Text, "Paris")
}
