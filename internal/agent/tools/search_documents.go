package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/fintalk/server/internal/embedding"
	"github.com/fintalk/server/internal/vector"
	logx "github.com/fintalk/server/pkg/logger"
)

const searchTopK = 5

// ===================================
// Document Search Tool
// ===================================

type searchDocumentsInput struct {
	Query string `json:"query"`
}

type searchDocumentsTool struct {
	embedder embedding.Embedder
	searcher vector.Searcher
}

// NewSearchDocuments builds the semantic retrieval tool over the vector
// index. Failures are reported back to the model as plain text so a broken
// retrieval path never aborts the whole agent run.
func NewSearchDocuments(embedder embedding.Embedder, searcher vector.Searcher) tool.InvokableTool {
	return &searchDocumentsTool{embedder: embedder, searcher: searcher}
}

func (t *searchDocumentsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "search_documents",
		Desc: "Searches through uploaded documents using semantic similarity. " +
			"Use this tool when the user asks questions about uploaded documents, " +
			"financial reports, or any content that has been indexed in the system.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     "string",
				Desc:     "The search query to find relevant document chunks",
				Required: true,
			},
		}),
	}, nil
}

func (t *searchDocumentsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in searchDocumentsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return fmt.Sprintf("Error searching documents: %v", err), nil
	}

	logx.Info().Str("query", in.Query).Msg("searching documents")

	queryVector, err := t.embedder.EmbedQuery(ctx, in.Query)
	if err != nil {
		logx.Error().Err(err).Msg("document search failed")
		return fmt.Sprintf("Error searching documents: %v", err), nil
	}

	hits, err := t.searcher.Search(ctx, queryVector, searchTopK)
	if err != nil {
		logx.Error().Err(err).Msg("document search failed")
		return fmt.Sprintf("Error searching documents: %v", err), nil
	}

	if len(hits) == 0 {
		logx.Info().Msg("no relevant documents found")
		return "No relevant documents found for your query.", nil
	}

	formatted := make([]string, 0, len(hits))
	for idx, hit := range hits {
		source := hit.Metadata.Filename
		if source == "" {
			source = "Unknown"
		}
		formatted = append(formatted, fmt.Sprintf(
			"[Result %d]\nContent: %s\nSource: %s\nSimilarity: %.3f\n",
			idx+1, hit.Content, source, hit.Score,
		))
	}

	logx.Info().Int("results", len(hits)).Msg("found relevant documents")
	return strings.Join(formatted, "\n"), nil
}
