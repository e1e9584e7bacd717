package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/askbase/askbase/internal/domain"
)

const catalogTTL = 5 * time.Minute

// Registry selects the adapter for a provider name and caches model
// catalogs so validation does not hit the upstream on every request.
type Registry struct {
	adapters map[domain.ProviderName]Adapter

	mu    sync.Mutex
	cache map[string]catalogEntry
}

type catalogEntry struct {
	fetchedAt time.Time
	models    []string
}

// NewRegistry creates a Registry with one adapter per supported vendor.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		adapters: map[domain.ProviderName]Adapter{
			domain.ProviderOpenAI: NewOpenAIAdapter(opts),
			domain.ProviderAzure:  NewAzureAdapter(opts),
			domain.ProviderGemini: NewGeminiAdapter(opts),
		},
		cache: make(map[string]catalogEntry),
	}
}

// ForConfig returns the adapter that serves cfg's provider.
func (r *Registry) ForConfig(cfg domain.ProviderConfig) (Adapter, error) {
	adapter, ok := r.adapters[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return adapter, nil
}

// ValidateModel fails fast with UnsupportedModelError when cfg.Model is not
// in the provider's declared catalog, so a bad model name never reaches an
// embedding or generation call. When the catalog cannot be fetched the
// static fallback list is consulted instead.
func (r *Registry) ValidateModel(ctx context.Context, cfg domain.ProviderConfig) error {
	models := r.Models(ctx, cfg)

	for _, m := range models {
		if modelNamesEqual(m, cfg.Model) {
			return nil
		}
	}

	return domain.NewDomainErrorWithCause(
		domain.ErrCodeUnsupportedModel,
		"model is not supported by provider",
		fmt.Errorf("model %q not in %s catalog", cfg.Model, cfg.Provider),
	)
}

// Models returns the provider's model catalog, from cache when fresh, from
// the upstream otherwise, and from the static fallback when the upstream
// call fails.
func (r *Registry) Models(ctx context.Context, cfg domain.ProviderConfig) []string {
	key := cacheKey(cfg)

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < catalogTTL {
		return entry.models
	}

	adapter, err := r.ForConfig(cfg)
	if err != nil {
		return nil
	}

	models, err := adapter.ListModels(ctx, cfg)
	if err != nil || len(models) == 0 {
		models = FallbackModels(cfg.Provider, cfg.Role)
	}

	r.mu.Lock()
	r.cache[key] = catalogEntry{fetchedAt: time.Now(), models: models}
	r.mu.Unlock()

	return models
}

// FallbackModels is the static catalog used when the upstream listing is
// unavailable.
func FallbackModels(provider domain.ProviderName, role domain.ProviderRole) []string {
	switch provider {
	case domain.ProviderGemini:
		if role == domain.ProviderRoleEmbedding {
			return []string{"models/embedding-001", "models/gemini-embedding-001"}
		}
		return []string{"gemini-2.5-pro", "gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}
	default:
		if role == domain.ProviderRoleEmbedding {
			return []string{"text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002"}
		}
		return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"}
	}
}

// ProviderCatalog is the per-provider model listing exposed to clients so
// they can populate configuration pickers.
type ProviderCatalog struct {
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Available bool     `json:"available"`
}

// Catalogs builds the catalog payload for every known provider. Providers
// without a configured key are reported unavailable with their fallback
// lists, matching what a client needs to render a config form.
func (r *Registry) Catalogs(ctx context.Context, role domain.ProviderRole, configs map[domain.ProviderName]domain.ProviderConfig) []ProviderCatalog {
	names := []domain.ProviderName{domain.ProviderOpenAI, domain.ProviderAzure, domain.ProviderGemini}

	catalogs := make([]ProviderCatalog, 0, len(names))
	for _, name := range names {
		cfg, ok := configs[name]
		if !ok || cfg.APIKey == "" {
			catalogs = append(catalogs, ProviderCatalog{
				Name:      string(name),
				Models:    FallbackModels(name, role),
				Available: false,
			})
			continue
		}
		catalogs = append(catalogs, ProviderCatalog{
			Name:      string(name),
			Models:    r.Models(ctx, cfg),
			Available: true,
		})
	}
	return catalogs
}

// cacheKey scopes a catalog entry to the credential that fetched it. The key
// carries a fingerprint of the API key, never the key itself, so one caller's
// catalog is not served to another caller hitting the same endpoint.
func cacheKey(cfg domain.ProviderConfig) string {
	sum := sha256.Sum256([]byte(cfg.APIKey))
	return strings.ToLower(string(cfg.Provider)) + "|" + string(cfg.Role) + "|" + cfg.BaseURL +
		"|" + hex.EncodeToString(sum[:8])
}

func modelNamesEqual(a, b string) bool {
	return strings.TrimPrefix(a, "models/") == strings.TrimPrefix(b, "models/")
}
