package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/fintalk/server/internal/embedding"
	"github.com/fintalk/server/internal/vector"
)

// Tool names as the model sees them.
const (
	ToolSearchDocuments  = "search_documents"
	ToolBlockCreditCard  = "block_credit_card"
	ToolEnableCreditCard = "enable_credit_card"
)

// GetAgentTools assembles the full toolset exposed to the agent.
func GetAgentTools(embedder embedding.Embedder, searcher vector.Searcher, cards CardStore) []tool.BaseTool {
	return []tool.BaseTool{
		NewSearchDocuments(embedder, searcher),
		NewBlockCreditCard(cards),
		NewEnableCreditCard(cards),
	}
}

// GetToolInfos resolves the ToolInfo for each tool in the set.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
