package domain

import (
	"fmt"
	"strings"
)

// ProviderRole distinguishes what a provider configuration is used for.
type ProviderRole string

const (
	ProviderRoleEmbedding  ProviderRole = "embedding"
	ProviderRoleGeneration ProviderRole = "generation"
)

// ProviderName identifies a supported provider backend.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderAzure  ProviderName = "azure"
	ProviderGemini ProviderName = "gemini"
)

// ProviderConfig carries everything needed to call one provider in one role.
// Guest configs live only for the duration of a request; they are never
// persisted by the core.
type ProviderConfig struct {
	Role     ProviderRole
	Provider ProviderName
	Model    string
	APIKey   string
	BaseURL  string
}

// ValidateProviderConfig validates a ProviderConfig instance
func ValidateProviderConfig(c ProviderConfig) error {
	if !isValidProviderRole(c.Role) {
		return fmt.Errorf("provider Role is invalid: %s", c.Role)
	}

	if !isValidProviderName(c.Provider) {
		return fmt.Errorf("provider Name is invalid: %s", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("provider Model is required")
	}

	if c.APIKey == "" {
		return fmt.Errorf("provider APIKey is required")
	}

	if c.Provider == ProviderOpenAI && !strings.HasPrefix(c.APIKey, "sk-") {
		return fmt.Errorf("openai API keys must start with sk-")
	}

	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http") {
		return fmt.Errorf("provider BaseURL must be an http(s) URL")
	}

	return nil
}

func isValidProviderRole(r ProviderRole) bool {
	switch r {
	case ProviderRoleEmbedding, ProviderRoleGeneration:
		return true
	}
	return false
}

func isValidProviderName(n ProviderName) bool {
	switch n {
	case ProviderOpenAI, ProviderAzure, ProviderGemini:
		return true
	}
	return false
}
