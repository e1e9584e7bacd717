package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the lifecycle status of an uploaded document
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusProcessed DocumentStatus = "processed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document represents an uploaded file in the knowledge base.
// It is created as pending on upload and moved to processed or failed
// once extraction, chunking and embedding have run.
type Document struct {
	ID            string
	Filename      string
	SizeBytes     int64
	Description   string
	Status        DocumentStatus
	FailureReason string
	RawTextLength int
	ChunkCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewDocument creates a pending Document for an uploaded file.
func NewDocument(id, filename string, sizeBytes int64, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		Filename:  filename,
		SizeBytes: sizeBytes,
		Status:    DocumentStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// MarkProcessed transitions the document to processed with its derived counts.
func (d *Document) MarkProcessed(rawTextLength, chunkCount int, at time.Time) {
	d.Status = DocumentStatusProcessed
	d.FailureReason = ""
	d.RawTextLength = rawTextLength
	d.ChunkCount = chunkCount
	d.UpdatedAt = at
}

// MarkFailed transitions the document to failed with a reason. No chunks
// survive a failed ingestion.
func (d *Document) MarkFailed(reason string, at time.Time) {
	d.Status = DocumentStatusFailed
	d.FailureReason = reason
	d.RawTextLength = 0
	d.ChunkCount = 0
	d.UpdatedAt = at
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessed, DocumentStatusFailed:
		return true
	}
	return false
}

// DocumentStats summarizes the knowledge base contents.
type DocumentStats struct {
	DocumentCount  int64
	VectorCount    int64
	TotalSizeBytes int64
}
