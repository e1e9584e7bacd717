package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/askbase/askbase/internal/domain"
)

// AzureAdapter speaks the Azure OpenAI dialect: the same operations as
// OpenAI but against a resource endpoint instead of the global API host,
// with deployment names in place of model names. BaseURL must carry the
// resource endpoint.
type AzureAdapter struct {
	opts Options
}

// NewAzureAdapter creates an adapter for Azure OpenAI deployments.
func NewAzureAdapter(opts Options) *AzureAdapter {
	return &AzureAdapter{opts: opts.normalized()}
}

func (a *AzureAdapter) clientFor(cfg domain.ProviderConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeAuth, "provider API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("azure provider requires a resource endpoint base URL")
	}
	return openai.NewClientWithConfig(openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)), nil
}

// Embed implements Adapter.
func (a *AzureAdapter) Embed(ctx context.Context, texts []string, cfg domain.ProviderConfig) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}
	client, err := a.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	var resp openai.EmbeddingResponse
	err = withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()

		var callErr error
		resp, callErr = client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(cfg.Model),
		})
		return classifyOpenAIError(callErr)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.NewDomainErrorWithCause(
			domain.ErrCodeNetwork,
			"provider request failed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		)
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// Generate implements Adapter.
func (a *AzureAdapter) Generate(ctx context.Context, prompt string, cfg domain.ProviderConfig) (string, error) {
	client, err := a.clientFor(cfg)
	if err != nil {
		return "", err
	}

	var resp openai.ChatCompletionResponse
	err = withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()

		var callErr error
		resp, callErr = client.CreateChatCompletion(callCtx, a.chatRequest(prompt, cfg, false))
		return classifyOpenAIError(callErr)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeNetwork,
			"provider request failed",
			errors.New("completion response contained no choices"),
		)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements Adapter.
func (a *AzureAdapter) GenerateStream(ctx context.Context, prompt string, cfg domain.ProviderConfig) (Stream, error) {
	client, err := a.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	stream, err := client.CreateChatCompletionStream(ctx, a.chatRequest(prompt, cfg, true))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	return newTrackedStream(
		func() (string, error) {
			for {
				resp, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				if err != nil {
					return "", classifyOpenAIError(err)
				}
				if len(resp.Choices) == 0 {
					continue
				}
				if delta := resp.Choices[0].Delta.Content; delta != "" {
					return delta, nil
				}
			}
		},
		stream.Close,
	), nil
}

// ListModels implements Adapter. Azure exposes the deployed models on the
// same /models route as the upstream dialect.
func (a *AzureAdapter) ListModels(ctx context.Context, cfg domain.ProviderConfig) ([]string, error) {
	client, err := a.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	var list openai.ModelsList
	err = withRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()

		var callErr error
		list, callErr = client.ListModels(callCtx)
		return classifyOpenAIError(callErr)
	})
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

func (a *AzureAdapter) chatRequest(prompt string, cfg domain.ProviderConfig, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		Stream:      stream,
	}
}
