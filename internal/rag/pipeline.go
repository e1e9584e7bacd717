package rag

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/telemetry"
	"github.com/askbase/askbase/internal/vectorstore"
)

// State names one stage of a query pipeline run. A run moves strictly
// forward; Completed and Failed are terminal.
type State string

const (
	StateIdle           State = "idle"
	StateEmbeddingQuery State = "embedding_query"
	StateRetrieving     State = "retrieving"
	StatePromptAssembly State = "prompt_assembly"
	StateGenerating     State = "generating"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// DefaultTopK is the retrieval depth used when the caller does not choose one.
const DefaultTopK = 24

// DefaultDeltaTimeout is the per-delta idle timeout on answer streams. A
// stream that stays silent longer than this is treated as broken.
const DefaultDeltaTimeout = 60 * time.Second

// Registry resolves provider adapters and validates models.
type Registry interface {
	ForConfig(cfg domain.ProviderConfig) (provider.Adapter, error)
	ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error
}

// Options tunes a Pipeline.
type Options struct {
	TopK          int
	ContextBudget int
	DeltaTimeout  time.Duration
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = DefaultContextBudget
	}
	if o.DeltaTimeout <= 0 {
		o.DeltaTimeout = DefaultDeltaTimeout
	}
	return o
}

// Pipeline answers questions against the vector index. Each call runs as an
// independent instance; the only shared state is the store itself.
type Pipeline struct {
	store    vectorstore.Store
	registry Registry
	opts     Options
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(store vectorstore.Store, registry Registry, opts Options) *Pipeline {
	return &Pipeline{
		store:    store,
		registry: registry,
		opts:     opts.normalized(),
	}
}

// QueryInput carries one question and the caller's provider credentials.
// Configs arrive per call and are never read from process state, so system
// and guest callers share the same pipeline code.
type QueryInput struct {
	Question   string
	Embedding  domain.ProviderConfig
	Generation domain.ProviderConfig
	TopK       int
}

// Answer is the result of a non-streaming query.
type Answer struct {
	Text        string
	Sources     []domain.Chunk
	Scores      []float64
	EmptyCorpus bool
}

// retrieval runs the shared front half of the pipeline: validate configs,
// embed the question, search the index, assemble the prompt.
func (p *Pipeline) retrieval(ctx context.Context, input QueryInput, state *State) (prompt string, result *domain.RetrievalResult, err error) {
	if input.Question == "" {
		return "", nil, domain.NewDomainError(domain.ErrCodeValidation, "question is required")
	}
	if err := domain.ValidateProviderConfig(input.Embedding); err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding config", err)
	}
	if err := domain.ValidateProviderConfig(input.Generation); err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid generation config", err)
	}
	if err := p.registry.ValidateModel(ctx, input.Embedding); err != nil {
		return "", nil, err
	}
	if err := p.registry.ValidateModel(ctx, input.Generation); err != nil {
		return "", nil, err
	}

	*state = StateEmbeddingQuery
	embedder, err := p.registry.ForConfig(input.Embedding)
	if err != nil {
		return "", nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{input.Question}, input.Embedding)
	if err != nil {
		return "", nil, err
	}

	*state = StateRetrieving
	topK := input.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}
	result, err = p.store.Search(ctx, vectors[0], topK, nil)
	if err != nil {
		return "", nil, err
	}

	*state = StatePromptAssembly
	prompt, _ = BuildPrompt(input.Question, result, p.opts.ContextBudget)
	return prompt, result, nil
}

// Ask answers a question as a pull-based delta stream. The returned stream
// carries the retrieval sources and an empty-corpus flag alongside the
// deltas; the caller must Close it.
func (p *Pipeline) Ask(ctx context.Context, input QueryInput) (*AnswerStream, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.Ask", telemetry.SpanAttributes{
		Provider:  string(input.Generation.Provider),
		Model:     input.Generation.Model,
		Operation: "ask",
	})

	state := StateIdle
	prompt, result, err := p.retrieval(ctx, input, &state)
	if err != nil {
		span.SetError(err)
		span.End()
		return nil, err
	}

	state = StateGenerating
	generator, err := p.registry.ForConfig(input.Generation)
	if err != nil {
		span.End()
		return nil, err
	}
	upstream, err := generator.GenerateStream(ctx, prompt, input.Generation)
	if err != nil {
		span.SetError(err)
		span.End()
		return nil, err
	}

	return newAnswerStream(ctx, upstream, result, p.opts.DeltaTimeout, span), nil
}

// Answer answers a question without streaming.
func (p *Pipeline) Answer(ctx context.Context, input QueryInput) (*Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.Answer", telemetry.SpanAttributes{
		Provider:  string(input.Generation.Provider),
		Model:     input.Generation.Model,
		Operation: "query",
	})
	defer span.End()

	state := StateIdle
	prompt, result, err := p.retrieval(ctx, input, &state)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	state = StateGenerating
	generator, err := p.registry.ForConfig(input.Generation)
	if err != nil {
		return nil, err
	}
	text, err := generator.Generate(ctx, prompt, input.Generation)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &Answer{
		Text:        text,
		Sources:     result.Chunks,
		Scores:      result.Scores,
		EmptyCorpus: len(result.Chunks) == 0,
	}, nil
}

// AnswerStream is the streaming answer to one question. Deltas arrive in
// provider order; Recv returns io.EOF after the provider's end marker. A
// silent or broken stream surfaces ErrIncompleteStream, and Partial reports
// whether any deltas were emitted before the failure.
type AnswerStream struct {
	upstream     provider.Stream
	sources      *domain.RetrievalResult
	deltaTimeout time.Duration
	span         *telemetry.Span
	ctx          context.Context

	recvCh   chan recvResult
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	state   State
	emitted bool
	err     error
	closed  bool
}

type recvResult struct {
	text string
	err  error
}

func newAnswerStream(ctx context.Context, upstream provider.Stream, sources *domain.RetrievalResult, deltaTimeout time.Duration, span *telemetry.Span) *AnswerStream {
	s := &AnswerStream{
		upstream:     upstream,
		sources:      sources,
		deltaTimeout: deltaTimeout,
		span:         span,
		ctx:          ctx,
		recvCh:       make(chan recvResult),
		done:         make(chan struct{}),
		state:        StateGenerating,
	}
	go s.pump()
	return s
}

// pump reads the upstream on a dedicated goroutine so Recv can apply the
// idle timeout. The unbuffered channel keeps the consumer in control of
// pacing.
func (s *AnswerStream) pump() {
	for {
		text, err := s.upstream.Recv()
		select {
		case s.recvCh <- recvResult{text: text, err: err}:
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Recv returns the next delta. io.EOF marks normal completion.
func (s *AnswerStream) Recv() (string, error) {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return "", err
	}
	if s.closed {
		s.mu.Unlock()
		return "", io.EOF
	}
	s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		_ = s.upstream.Close()
		return "", s.finish(err)
	}

	timer := time.NewTimer(s.deltaTimeout)
	defer timer.Stop()

	select {
	case r := <-s.recvCh:
		if r.err != nil {
			return "", s.finish(r.err)
		}
		s.mu.Lock()
		s.emitted = true
		s.mu.Unlock()
		return r.text, nil
	case <-timer.C:
		_ = s.upstream.Close()
		return "", s.finish(domain.NewDomainError(domain.ErrCodeIncompleteStream,
			"no data received within the stream idle timeout"))
	case <-s.ctx.Done():
		_ = s.upstream.Close()
		return "", s.finish(s.ctx.Err())
	}
}

// release unblocks the pump goroutine if it is parked on a channel send.
func (s *AnswerStream) release() {
	s.doneOnce.Do(func() { close(s.done) })
}

// finish records the terminal state and makes it sticky.
func (s *AnswerStream) finish(err error) error {
	s.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == io.EOF {
		s.state = StateCompleted
		s.closed = true
		if s.span != nil {
			s.span.End()
		}
		return io.EOF
	}

	s.state = StateFailed
	s.err = err
	if s.span != nil {
		s.span.SetError(err)
		s.span.End()
	}
	return err
}

// Close releases the upstream connection. Safe to call at any point; a
// caller disconnecting mid-stream must call it so the provider connection
// is not orphaned.
func (s *AnswerStream) Close() error {
	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.state != StateCompleted && s.state != StateFailed {
		s.state = StateCompleted
	}
	s.mu.Unlock()

	s.release()
	if s.span != nil {
		s.span.End()
	}
	return s.upstream.Close()
}

// State reports the pipeline stage the stream is in.
func (s *AnswerStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sources returns the retrieved chunks backing the answer, best first.
func (s *AnswerStream) Sources() []domain.Chunk {
	return s.sources.Chunks
}

// Scores returns the similarity scores aligned with Sources.
func (s *AnswerStream) Scores() []float64 {
	return s.sources.Scores
}

// EmptyCorpus reports that retrieval found nothing and the prompt said so.
func (s *AnswerStream) EmptyCorpus() bool {
	return len(s.sources.Chunks) == 0
}

// Partial reports whether deltas were emitted before a failure. A caller
// showing the answer must flag it as incomplete when this is true.
func (s *AnswerStream) Partial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted && s.state == StateFailed
}
