package chunker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/askbase/askbase/internal/domain"
)

// SupportedExtensions lists the file types the extractor accepts.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".pdf":  true,
}

// IsSupported reports whether a filename has an extractable extension.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractText pulls plain text out of an uploaded file based on its
// extension. PDF extraction reads the text layer only; a scanned PDF with no
// text layer yields empty text, which is reportable but not an error.
func ExtractText(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md":
		return extractPlain(data)
	case ".json":
		return extractJSON(data)
	case ".pdf":
		return extractPDF(data)
	default:
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeExtraction,
			"failed to extract text from document",
			fmt.Errorf("unsupported file extension %q", ext),
		)
	}
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeExtraction,
			"failed to extract text from document",
			fmt.Errorf("file is not valid UTF-8 text"),
		)
	}
	return string(data), nil
}

// extractJSON flattens a JSON document into indented text so keys and values
// land in the same chunks they would be asked about.
func extractJSON(data []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeExtraction,
			"failed to extract text from document",
			fmt.Errorf("invalid JSON: %w", err),
		)
	}

	flattened, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "failed to extract text from document", err)
	}
	return string(flattened), nil
}

// extractPDF extracts the text layer of a PDF with pdfcpu. pdfcpu works on
// files, so the bytes round-trip through a temp directory.
func extractPDF(data []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "askbase-pdf")
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "failed to extract text from document", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "upload.pdf")
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "failed to extract text from document", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeExtraction,
			"failed to extract text from document",
			fmt.Errorf("unreadable PDF: %w", err),
		)
	}

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "failed to extract text from document", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		// A PDF without a text layer (scanned images) extracts nothing.
		// That is a reportable, non-fatal condition: empty text.
		return "", nil
	}

	pageTexts := make(map[int][]byte, pdfCtx.PageCount)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var pageNum int
		name := entry.Name()
		if _, err := fmt.Sscanf(name, "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(name, "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		if content, err := os.ReadFile(filepath.Join(outDir, name)); err == nil {
			pageTexts[pageNum] = content
		}
	}

	var builder bytes.Buffer
	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		text := pageTexts[pageNum]
		if len(text) == 0 {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.Write(text)
	}

	return builder.String(), nil
}
