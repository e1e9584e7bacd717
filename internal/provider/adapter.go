// Package provider implements a uniform adapter contract over the embedding
// and generation backends the engine can talk to (OpenAI-compatible, Azure
// OpenAI, Gemini). Callers pass a full ProviderConfig on every call; adapters
// hold no credentials of their own.
package provider

import (
	"context"
	"time"

	"github.com/askbase/askbase/internal/domain"
)

// Adapter is the uniform contract over heterogeneous provider backends.
// Every implementation maps vendor request/response shapes and streaming
// formats onto these four operations.
type Adapter interface {
	// Embed converts texts into embedding vectors, one per input, in input
	// order. texts must be non-empty.
	Embed(ctx context.Context, texts []string, cfg domain.ProviderConfig) ([][]float32, error)

	// Generate produces a complete answer for the prompt.
	Generate(ctx context.Context, prompt string, cfg domain.ProviderConfig) (string, error)

	// GenerateStream produces a lazy, finite, non-restartable sequence of
	// text deltas. The caller must Close the stream when done.
	GenerateStream(ctx context.Context, prompt string, cfg domain.ProviderConfig) (Stream, error)

	// ListModels returns the provider's declared model catalog for the role
	// in cfg.
	ListModels(ctx context.Context, cfg domain.ProviderConfig) ([]string, error)
}

// Stream is a pull-based sequence of answer deltas. Recv returns io.EOF
// after the provider's end marker. An abrupt connection close after at
// least one delta surfaces as ErrIncompleteStream; streams are never
// retried once a delta has been emitted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Options tunes adapter behavior shared across vendors.
type Options struct {
	// Temperature for generation calls.
	Temperature float32
	// MaxTokens bounds generated output length.
	MaxTokens int
	// RequestTimeout bounds embedding and non-streaming generation calls.
	// Streaming calls are bounded per delta by the pipeline instead.
	RequestTimeout time.Duration
}

// DefaultOptions mirrors the deployment defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:    0.3,
		MaxTokens:      800,
		RequestTimeout: 45 * time.Second,
	}
}

func (o Options) normalized() Options {
	if o.Temperature == 0 {
		o.Temperature = DefaultOptions().Temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultOptions().MaxTokens
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultOptions().RequestTimeout
	}
	return o
}
