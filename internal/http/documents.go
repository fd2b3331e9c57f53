package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	errx "github.com/fintalk/server/internal/core/error"
	"github.com/fintalk/server/internal/ingest"
	logx "github.com/fintalk/server/pkg/logger"
)

const maxUploadSize = 10 * 1024 * 1024

// Ingester turns an uploaded document into indexed chunks.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte) (*ingest.Result, error)
}

// DocumentsHandler serves the document upload endpoint.
type DocumentsHandler struct {
	pipeline Ingester
}

func NewDocumentsHandler(pipeline Ingester) *DocumentsHandler {
	return &DocumentsHandler{pipeline: pipeline}
}

func (h *DocumentsHandler) Upload(c *gin.Context) {
	if h.pipeline == nil {
		respondError(c, errx.CodeServiceUnavailable,
			"Document ingestion is not available",
			"The embedding client failed to initialize. Please check AWS Bedrock configuration.")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondValidation(c, map[string][]string{
			"file": {"This field is required."},
		})
		return
	}

	filename := filepath.Base(header.Filename)
	if !ingest.IsSupported(filename) {
		respondValidation(c, map[string][]string{
			"file": {fmt.Sprintf(
				"Unsupported file format '%s'. Supported formats: %s",
				strings.ToLower(filepath.Ext(filename)), strings.Join(ingest.SupportedExtensions, ", "),
			)},
		})
		return
	}
	if header.Size > maxUploadSize {
		respondValidation(c, map[string][]string{
			"file": {fmt.Sprintf(
				"File size exceeds maximum allowed size of %.1f MB",
				float64(maxUploadSize)/(1024*1024),
			)},
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		respondErrx(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondErrx(c, err)
		return
	}

	logx.Info().Str("filename", filename).Int("bytes", len(data)).Msg("processing document upload")

	result, err := h.pipeline.Ingest(c.Request.Context(), filename, data)
	if err != nil {
		logx.Error().Err(err).Str("filename", filename).Msg("document upload failed")
		respondErrx(c, err)
		return
	}

	logx.Info().
		Str("document_id", result.DocumentID).
		Int("chunks_created", result.ChunksCreated).
		Msg("document upload completed")

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"document_id":    result.DocumentID,
		"chunks_created": result.ChunksCreated,
		"filename":       result.Filename,
		"message":        "Document uploaded and indexed successfully",
	})
}
