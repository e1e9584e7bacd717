package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target has the same error code, so the typed sentinels
// below work with errors.Is even after wrapping with a cause.
func (e *DomainError) Is(target error) bool {
	other, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes for the retrieval-augmented query engine
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeUnsupportedModel  = "UNSUPPORTED_MODEL"
	ErrCodeAuth              = "AUTH_ERROR"
	ErrCodeRateLimit         = "RATE_LIMIT"
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeIncompleteStream  = "INCOMPLETE_STREAM"
	ErrCodeDimensionMismatch = "DIMENSION_MISMATCH"
	ErrCodeIngestionRollback = "INGESTION_ROLLBACK"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Typed errors, one per failure class the pipeline can surface. Transient
// network errors are retried inside the provider adapters and only reach
// callers once retries are exhausted.
var (
	// ErrExtraction: the uploaded file could not be read or is unsupported.
	ErrExtraction = NewDomainError(ErrCodeExtraction, "failed to extract text from document")
	// ErrUnsupportedModel: the requested model is not in the provider's catalog.
	ErrUnsupportedModel = NewDomainError(ErrCodeUnsupportedModel, "model is not supported by provider")
	// ErrAuth: bad or expired provider credentials (401/403). Never retried.
	ErrAuth = NewDomainError(ErrCodeAuth, "provider rejected credentials")
	// ErrRateLimit: provider rate limit hit (429). Never retried.
	ErrRateLimit = NewDomainError(ErrCodeRateLimit, "provider rate limit exceeded")
	// ErrNetwork: transient network or upstream 5xx failure.
	ErrNetwork = NewDomainError(ErrCodeNetwork, "provider request failed")
	// ErrIncompleteStream: the provider stream closed without an end marker
	// after at least one delta. Never retried; partial output would duplicate.
	ErrIncompleteStream = NewDomainError(ErrCodeIncompleteStream, "provider stream ended without completion marker")
	// ErrDimensionMismatch: an embedding's length disagrees with the index dimension.
	ErrDimensionMismatch = NewDomainError(ErrCodeDimensionMismatch, "embedding dimension does not match index")
	// ErrIngestionRollback: embedding failed mid-document; all chunks were rolled back.
	ErrIngestionRollback = NewDomainError(ErrCodeIngestionRollback, "ingestion failed and was rolled back")

	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)
