package observers

import (
	"context"
	"strings"
	"sync"

	"github.com/fintalk/server/internal/agent/model"
)

type recorderKey struct{}

// Recorder accumulates tool activity for a single agent run. Tool executions
// within one run are sequential, but the mutex keeps the recorder safe if the
// tools node ever executes in parallel.
type Recorder struct {
	mu       sync.Mutex
	tools    []string
	searches []model.SearchTrace
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// WithRecorder attaches the recorder to the context travelling through the
// agent graph so the tool callbacks can reach it.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func recorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// RecordTool notes one tool invocation and inspects search output for
// retrieved sources.
func (r *Recorder) RecordTool(name, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tools {
		if t == name {
			name = ""
			break
		}
	}
	if name != "" {
		r.tools = append(r.tools, name)
	}

	if strings.Contains(output, "Source:") {
		r.searches = append(r.searches, model.SearchTrace{
			Tool: "search_documents",
			Note: "Documents retrieved from vector store",
		})
	}
}

// ToolsUsed returns the distinct tool names invoked, in first-use order.
func (r *Recorder) ToolsUsed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tools))
	copy(out, r.tools)
	return out
}

// Searches returns the retrieval traces observed during the run.
func (r *Recorder) Searches() []model.SearchTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SearchTrace, len(r.searches))
	copy(out, r.searches)
	return out
}
