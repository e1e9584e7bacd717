package handlers

import (
	"context"
	"net/http"

	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/api/middleware"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/provider"
)

type ModelCatalog interface {
	Catalogs(ctx context.Context, role domain.ProviderRole, configs map[domain.ProviderName]domain.ProviderConfig) []provider.ProviderCatalog
}

type ModelsHandler struct {
	catalog ModelCatalog
}

func NewModelsHandler(catalog ModelCatalog) *ModelsHandler {
	return &ModelsHandler{catalog: catalog}
}

type ModelsResponse struct {
	Embedding  []provider.ProviderCatalog `json:"embedding"`
	Generation []provider.ProviderCatalog `json:"generation"`
}

// List returns the per-provider model catalogs for both roles, keyed by the
// request scope's credentials so guests see what their own keys can reach.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r.Context())
	if scope == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	embeddingConfigs := map[domain.ProviderName]domain.ProviderConfig{
		scope.Embedding.Provider: scope.Embedding,
	}
	generationConfigs := map[domain.ProviderName]domain.ProviderConfig{
		scope.Generation.Provider: scope.Generation,
	}

	api.Success(w, http.StatusOK, ModelsResponse{
		Embedding:  h.catalog.Catalogs(r.Context(), domain.ProviderRoleEmbedding, embeddingConfigs),
		Generation: h.catalog.Catalogs(r.Context(), domain.ProviderRoleGeneration, generationConfigs),
	})
}
