package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fintalk/server/internal/agent/model"
	errx "github.com/fintalk/server/internal/core/error"
	logx "github.com/fintalk/server/pkg/logger"
)

// QueryHandler serves the agent query endpoint in both batch and SSE modes.
// A nil delegate means the agent failed to initialize at startup; the handler
// then reports SERVICE_UNAVAILABLE instead of refusing the route.
type QueryHandler struct {
	delegate model.Delegate
}

func NewQueryHandler(delegate model.Delegate) *QueryHandler {
	return &QueryHandler{delegate: delegate}
}

type queryRequest struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number"`
	Stream      *bool  `json:"stream"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, map[string][]string{
			"message": {"Invalid JSON body."},
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondValidation(c, map[string][]string{
			"message": {"This field is required and may not be blank."},
		})
		return
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	logx.Info().
		Str("phone_number", req.PhoneNumber).
		Bool("stream", stream).
		Msg("processing agent query")

	if h.delegate == nil {
		logx.Error().Msg("agent is not initialized")
		unavailable := newErrorEnvelope(
			errx.CodeServiceUnavailable,
			"Agent service is not available",
			"The AI agent failed to initialize. Please check AWS Bedrock configuration.",
		)
		if stream {
			writeSSEHeaders(c)
			c.Status(http.StatusServiceUnavailable)
			writeSSE(c, gin.H{"type": "error", "content": unavailable})
			return
		}
		c.JSON(http.StatusServiceUnavailable, unavailable)
		return
	}

	prompt := req.Message
	if req.PhoneNumber != "" {
		prompt = fmt.Sprintf("%s\n\n[User phone number: %s]", req.Message, req.PhoneNumber)
	}

	if stream {
		h.streamQuery(c, prompt)
		return
	}
	h.batchQuery(c, prompt)
}

func (h *QueryHandler) batchQuery(c *gin.Context, prompt string) {
	result, err := h.delegate.Run(c.Request.Context(), prompt)
	if err != nil {
		logx.Error().Err(err).Msg("agent query failed")
		respondErrx(c, err)
		return
	}

	sources := result.Searches
	if sources == nil {
		sources = []model.SearchTrace{}
	}
	toolsUsed := result.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}

	logx.Info().Strs("tools_used", toolsUsed).Int("sources", len(sources)).Msg("agent query completed")

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"response":   result.Text,
		"sources":    sources,
		"tools_used": toolsUsed,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *QueryHandler) streamQuery(c *gin.Context, prompt string) {
	writeSSEHeaders(c)

	reader, err := h.delegate.RunStream(c.Request.Context(), prompt)
	if err != nil {
		writeSSEError(c, err)
		return
	}
	defer reader.Close()

	for {
		msg, errRecv := reader.Recv()
		if errors.Is(errRecv, io.EOF) {
			break
		}
		if errRecv != nil {
			logx.Error().Err(errRecv).Msg("agent stream failed")
			writeSSEError(c, errRecv)
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		writeSSE(c, gin.H{"type": "token", "content": msg.Content})
	}

	writeSSE(c, gin.H{"type": "done"})
	logx.Info().Msg("streaming agent query completed")
}

func writeSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
}

// writeSSE emits one event and flushes immediately so tokens reach the client
// as they are produced.
func writeSSE(c *gin.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// writeSSEError emits one terminal error event carrying the internal error
// body. The HTTP status cannot change once the stream has begun.
func writeSSEError(c *gin.Context, err error) {
	e := errx.From(err)
	writeSSE(c, gin.H{
		"type": "error",
		"content": gin.H{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	})
}
