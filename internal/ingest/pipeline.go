package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	errx "github.com/fintalk/server/internal/core/error"
	"github.com/fintalk/server/internal/embedding"
	"github.com/fintalk/server/internal/vector"
	logx "github.com/fintalk/server/pkg/logger"
)

// Indexer is the slice of the vector index the pipeline needs.
type Indexer interface {
	EnsureIndex(ctx context.Context) error
	IndexChunks(ctx context.Context, chunks []vector.Chunk) error
}

// Result describes a completed ingestion.
type Result struct {
	DocumentID    string
	ChunksCreated int
	Filename      string
}

// Pipeline runs extract → chunk → embed → index for uploaded documents.
type Pipeline struct {
	embedder embedding.Embedder
	index    Indexer

	chunkSize    int
	chunkOverlap int
}

func NewPipeline(embedder embedding.Embedder, index Indexer) *Pipeline {
	return &Pipeline{
		embedder:     embedder,
		index:        index,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// Ingest processes one uploaded file. Stage failures carry the error code the
// protocol layer maps onto HTTP responses.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*Result, error) {
	documentID := uuid.NewString()
	logx.Info().Str("filename", filename).Str("document_id", documentID).Msg("Processing document upload")

	text, err := Extract(filename, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errx.New(errx.CodeDocumentLoad,
			"Failed to load document content",
			"The file could not be parsed or is empty")
	}

	chunks := Split(text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		return nil, errx.New(errx.CodeChunking, "Failed to chunk document", "no chunks produced")
	}

	if err := p.index.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		if errx.CodeOf(err) == errx.CodeServiceUnavailable {
			return nil, err
		}
		return nil, errx.Wrap(err, errx.CodeIndexing, "Failed to index document")
	}

	uploadDate := time.Now().UTC().Format(time.RFC3339)
	docs := make([]vector.Chunk, len(chunks))
	for i, content := range chunks {
		docs[i] = vector.Chunk{
			ID:        fmt.Sprintf("%s-%d", documentID, i),
			Content:   content,
			Embedding: vectors[i],
			Metadata: vector.Metadata{
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				UploadDate:  uploadDate,
				DocumentID:  documentID,
			},
		}
	}

	if err := p.index.IndexChunks(ctx, docs); err != nil {
		return nil, err
	}

	logx.Info().Str("filename", filename).Int("chunks", len(chunks)).Msg("Document indexed")
	return &Result{
		DocumentID:    documentID,
		ChunksCreated: len(chunks),
		Filename:      filename,
	}, nil
}
