package domain

import "fmt"

// Chunk is one bounded span of a document's text, embedded and indexed
// independently. Chunks are immutable once created and always belong to
// exactly one document; deleting the document cascades to its chunks.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Embedding  []float32
	Metadata   map[string]string
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.Ordinal < 0 {
		return fmt.Errorf("chunk Ordinal must not be negative")
	}

	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}

	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk Embedding is required")
	}

	return nil
}

// RetrievalResult is the ephemeral output of a vector search: chunks in
// descending similarity order with their scores aligned by index.
type RetrievalResult struct {
	Chunks []Chunk
	Scores []float64
}
