package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/askbase/askbase/internal/domain"
)

// GeminiAdapter talks to the Gemini API through the google genai SDK.
type GeminiAdapter struct {
	opts Options
}

// NewGeminiAdapter creates an adapter for Gemini-style backends.
func NewGeminiAdapter(opts Options) *GeminiAdapter {
	return &GeminiAdapter{opts: opts.normalized()}
}

func (a *GeminiAdapter) clientFor(ctx context.Context, cfg domain.ProviderConfig) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeAuth, "provider API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	return client, nil
}

// Embed implements Adapter.
func (a *GeminiAdapter) Embed(ctx context.Context, texts []string, cfg domain.ProviderConfig) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	client, err := a.clientFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var result *genai.EmbedContentResponse
	err = withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()

		var callErr error
		result, callErr = client.Models.EmbedContent(callCtx, geminiModelName(cfg.Model), contents, nil)
		return classifyGeminiError(callErr)
	})
	if err != nil {
		return nil, err
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeNetwork,
			"provider request failed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), got),
		)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Generate implements Adapter.
func (a *GeminiAdapter) Generate(ctx context.Context, prompt string, cfg domain.ProviderConfig) (string, error) {
	client, err := a.clientFor(ctx, cfg)
	if err != nil {
		return "", err
	}

	var resp *genai.GenerateContentResponse
	err = withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()

		var callErr error
		resp, callErr = client.Models.GenerateContent(
			callCtx,
			geminiModelName(cfg.Model),
			genai.Text(prompt),
			a.generateConfig(),
		)
		return classifyGeminiError(callErr)
	})
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeNetwork,
			"provider request failed",
			errors.New("response contained no text candidates"),
		)
	}
	return text, nil
}

// GenerateStream implements Adapter. The genai SDK yields a push iterator;
// iter.Pull converts it into the pull-based Stream the pipeline consumes so
// the caller controls pacing.
func (a *GeminiAdapter) GenerateStream(ctx context.Context, prompt string, cfg domain.ProviderConfig) (Stream, error) {
	client, err := a.clientFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	seq := client.Models.GenerateContentStream(
		ctx,
		geminiModelName(cfg.Model),
		genai.Text(prompt),
		a.generateConfig(),
	)
	next, stop := iter.Pull2(iter.Seq2[*genai.GenerateContentResponse, error](seq))

	return newTrackedStream(
		func() (string, error) {
			for {
				resp, err, ok := next()
				if !ok {
					return "", io.EOF
				}
				if err != nil {
					return "", classifyGeminiError(err)
				}
				if delta := resp.Text(); delta != "" {
					return delta, nil
				}
			}
		},
		func() error {
			stop()
			return nil
		},
	), nil
}

// ListModels implements Adapter.
func (a *GeminiAdapter) ListModels(ctx context.Context, cfg domain.ProviderConfig) ([]string, error) {
	client, err := a.clientFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()

	models := make([]string, 0, 32)
	for model, err := range client.Models.All(callCtx) {
		if err != nil {
			return nil, classifyGeminiError(err)
		}
		models = append(models, model.Name)
	}
	sort.Strings(models)
	return models, nil
}

func (a *GeminiAdapter) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(a.opts.Temperature),
		MaxOutputTokens: int32(a.opts.MaxTokens),
	}
}

// geminiModelName accepts both the bare ("gemini-2.0-flash") and
// catalog-prefixed ("models/gemini-2.0-flash") spellings.
func geminiModelName(model string) string {
	return strings.TrimPrefix(model, "models/")
}
