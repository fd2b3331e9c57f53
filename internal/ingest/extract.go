package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"

	errx "github.com/fintalk/server/internal/core/error"
)

// SupportedExtensions lists the upload formats the pipeline can parse.
var SupportedExtensions = []string{".pdf", ".txt", ".docx"}

// IsSupported reports whether the filename carries a parseable extension.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract pulls plain text out of an uploaded file based on its extension.
func Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return string(data), nil
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDocx(data)
	default:
		return "", errx.New(errx.CodeValidation,
			"Invalid request data",
			fmt.Sprintf("Unsupported file format %q. Supported formats: %s",
				filepath.Ext(filename), strings.Join(SupportedExtensions, ", ")))
	}
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errx.Wrap(err, errx.CodeDocumentParse, "Failed to parse document")
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", errx.Wrap(err, errx.CodeDocumentParse, "Failed to parse document")
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", errx.Wrap(err, errx.CodeDocumentParse, "Failed to parse document")
	}
	return buf.String(), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errx.Wrap(err, errx.CodeDocumentParse, "Failed to parse document")
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph, *docx.Table:
			sb.WriteString(fmt.Sprint(it))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
