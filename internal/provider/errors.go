package provider

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/askbase/askbase/internal/domain"
)

// classifyHTTPStatus maps an upstream status code to the error taxonomy.
// 401/403/429 are terminal for the caller; 5xx is transient and retryable
// before any stream output has been produced.
func classifyHTTPStatus(status int, cause error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewDomainErrorWithCause(domain.ErrCodeAuth, "provider rejected credentials", cause)
	case status == http.StatusTooManyRequests:
		return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimit, "provider rate limit exceeded", cause)
	case status >= 500:
		return domain.NewDomainErrorWithCause(domain.ErrCodeNetwork, "provider request failed", cause)
	default:
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "provider returned an unexpected error", cause)
	}
}

// classifyOpenAIError translates go-openai SDK errors into domain errors.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyHTTPStatus(reqErr.HTTPStatusCode, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// Anything the SDK could not turn into an API error is a transport
	// failure: DNS, reset connections, malformed responses.
	return domain.NewDomainErrorWithCause(domain.ErrCodeNetwork, "provider request failed", err)
}

// classifyGeminiError translates genai SDK errors into domain errors.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.Code, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return domain.NewDomainErrorWithCause(domain.ErrCodeNetwork, "provider request failed", err)
}

// retryable reports whether an already-classified error may be retried.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrNetwork)
}
