// Package session resolves which provider credentials a request runs under.
// System scope uses the deployment's own credentials; guest scope is built
// from request-supplied configs that live only for the duration of the
// request and are never persisted.
package session

import (
	"encoding/json"

	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/domain"
)

// ScopeKind identifies who owns the credentials a request runs under.
type ScopeKind string

const (
	ScopeSystem ScopeKind = "system"
	ScopeGuest  ScopeKind = "guest"
)

const (
	defaultGuestProvider       = string(domain.ProviderOpenAI)
	defaultGuestModel          = "gpt-4o-mini"
	defaultGuestEmbeddingModel = "text-embedding-3-small"
)

// Scope carries the resolved embedding and generation configs for one request.
type Scope struct {
	Kind       ScopeKind
	Embedding  domain.ProviderConfig
	Generation domain.ProviderConfig
}

// GuestConfig is the request-supplied credential payload. Empty provider and
// model fields fall back to the openai defaults, matching the behavior a
// first-time caller expects when they only bring an API key.
type GuestConfig struct {
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMAPIKey   string `json:"llm_api_key"`
	LLMBaseURL  string `json:"llm_base_url"`

	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingAPIKey   string `json:"embedding_api_key"`
	EmbeddingBaseURL  string `json:"embedding_base_url"`
}

// ParseGuestConfig decodes a guest credential payload from JSON.
func ParseGuestConfig(raw []byte) (*GuestConfig, error) {
	var gc GuestConfig
	if err := json.Unmarshal(raw, &gc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid provider config payload", err)
	}
	return &gc, nil
}

func (g *GuestConfig) applyDefaults() {
	if g.LLMProvider == "" {
		g.LLMProvider = defaultGuestProvider
	}
	if g.LLMModel == "" {
		g.LLMModel = defaultGuestModel
	}
	if g.EmbeddingProvider == "" {
		g.EmbeddingProvider = defaultGuestProvider
	}
	if g.EmbeddingModel == "" {
		g.EmbeddingModel = defaultGuestEmbeddingModel
	}
	// A caller that only supplies one key usually means it for both roles.
	if g.EmbeddingAPIKey == "" && g.EmbeddingProvider == g.LLMProvider {
		g.EmbeddingAPIKey = g.LLMAPIKey
	}
}

// Scope validates the guest config and materializes a request scope from it.
func (g *GuestConfig) Scope() (*Scope, error) {
	g.applyDefaults()

	s := &Scope{
		Kind: ScopeGuest,
		Embedding: domain.ProviderConfig{
			Role:     domain.ProviderRoleEmbedding,
			Provider: domain.ProviderName(g.EmbeddingProvider),
			Model:    g.EmbeddingModel,
			APIKey:   g.EmbeddingAPIKey,
			BaseURL:  g.EmbeddingBaseURL,
		},
		Generation: domain.ProviderConfig{
			Role:     domain.ProviderRoleGeneration,
			Provider: domain.ProviderName(g.LLMProvider),
			Model:    g.LLMModel,
			APIKey:   g.LLMAPIKey,
			BaseURL:  g.LLMBaseURL,
		},
	}

	if err := domain.ValidateProviderConfig(s.Embedding); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding config", err)
	}
	if err := domain.ValidateProviderConfig(s.Generation); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid generation config", err)
	}
	return s, nil
}

// Resolver produces per-request scopes, falling back to the system scope
// when a request brings no credentials of its own.
type Resolver struct {
	system *Scope
}

// NewResolver builds a resolver from the deployment config. The system scope
// is nil when the deployment carries no provider credentials, in which case
// every request must be a guest.
func NewResolver(cfg *config.Config) *Resolver {
	r := &Resolver{}
	if cfg.HasSystemProviders() {
		r.system = &Scope{
			Kind:       ScopeSystem,
			Embedding:  cfg.SystemEmbeddingConfig(),
			Generation: cfg.SystemGenerationConfig(),
		}
	}
	return r
}

// Resolve returns the scope for one request. A non-nil guest config always
// wins over the system scope.
func (r *Resolver) Resolve(guest *GuestConfig) (*Scope, error) {
	if guest != nil {
		return guest.Scope()
	}
	if r.system == nil {
		return nil, domain.NewDomainError(domain.ErrCodeAuth, "no provider credentials configured; supply a guest config")
	}
	return r.system, nil
}
