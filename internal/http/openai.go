package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	errx "github.com/fintalk/server/internal/core/error"
	logx "github.com/fintalk/server/pkg/logger"
)

// phonePattern matches the inline routing token clients may embed in the user
// message, e.g. "Block my card [phone: +1234567890]".
var phonePattern = regexp.MustCompile(`\[phone:\s*([\d+\-\s]+)\]`)

// openaiError is the OpenAI error wire shape, intentionally distinct from the
// internal vocabulary since it mimics a different external contract.
type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

func respondOpenAIError(c *gin.Context, status int, e openaiError) {
	c.JSON(status, gin.H{"error": e})
}

// openaiErrorFrom maps the internal taxonomy onto OpenAI error types.
func openaiErrorFrom(err error) (int, openaiError) {
	e := errx.From(err)
	switch e.Code {
	case errx.CodeValidation:
		return http.StatusBadRequest, openaiError{Message: e.Message, Type: "invalid_request_error"}
	case errx.CodeServiceUnavailable:
		return http.StatusServiceUnavailable, openaiError{Message: e.Message, Type: "service_unavailable_error"}
	default:
		return http.StatusInternalServerError, openaiError{Message: e.Message, Type: "server_error"}
	}
}

// ChatCompletions serves the OpenAI-compatible surface over the same
// delegate as the native query endpoint.
func (h *QueryHandler) ChatCompletions(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondOpenAIError(c, http.StatusBadRequest, openaiError{
			Message: "Invalid JSON body",
			Type:    "invalid_request_error",
		})
		return
	}
	if len(req.Messages) == 0 {
		respondOpenAIError(c, http.StatusBadRequest, openaiError{
			Message: "messages is required and must not be empty",
			Type:    "invalid_request_error",
			Param:   "messages",
		})
		return
	}

	prompt, phone, err := foldMessages(req.Messages)
	if err != nil {
		respondOpenAIError(c, http.StatusBadRequest, openaiError{
			Message: err.Error(),
			Type:    "invalid_request_error",
			Param:   "messages",
		})
		return
	}

	if h.delegate == nil {
		logx.Error().Msg("agent is not initialized")
		respondOpenAIError(c, http.StatusServiceUnavailable, openaiError{
			Message: "Agent service is not available",
			Type:    "service_unavailable_error",
		})
		return
	}

	if phone != "" {
		prompt = fmt.Sprintf("%s\n\n[User phone number: %s]", prompt, phone)
	}

	logx.Info().
		Str("model", req.Model).
		Bool("stream", req.Stream).
		Msg("processing chat completion")

	if req.Stream {
		h.streamChatCompletion(c, req.Model, prompt)
		return
	}
	h.batchChatCompletion(c, req.Model, prompt)
}

// foldMessages flattens an OpenAI message list into one prompt: system
// messages first, prior turns as history lines, and the last user message as
// the live query. A phone token in the user content is extracted for routing
// and stripped from the text.
func foldMessages(messages []openai.ChatCompletionMessage) (prompt, phone string, err error) {
	var systemParts, turns []string
	lastUser := ""
	lastUserIdx := -1

	for _, m := range messages {
		switch m.Role {
		case openai.ChatMessageRoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case openai.ChatMessageRoleAssistant:
			if m.Content != "" {
				turns = append(turns, "Assistant: "+m.Content)
			}
		case openai.ChatMessageRoleUser:
			turns = append(turns, "User: "+m.Content)
			lastUser = m.Content
			lastUserIdx = len(turns) - 1
		}
	}

	if lastUserIdx < 0 || strings.TrimSpace(lastUser) == "" {
		return "", "", errors.New("at least one user message with content is required")
	}

	// The last user turn is the live query, not history.
	history := append(turns[:lastUserIdx:lastUserIdx], turns[lastUserIdx+1:]...)

	if match := phonePattern.FindStringSubmatch(lastUser); match != nil {
		phone = strings.TrimSpace(match[1])
		lastUser = strings.TrimSpace(phonePattern.ReplaceAllString(lastUser, ""))
	}

	var parts []string
	if len(systemParts) > 0 {
		parts = append(parts, strings.Join(systemParts, "\n"))
	}
	if len(history) > 0 {
		parts = append(parts, strings.Join(history, "\n"))
	}
	parts = append(parts, lastUser)

	return strings.Join(parts, "\n\n"), phone, nil
}

func (h *QueryHandler) batchChatCompletion(c *gin.Context, modelName, prompt string) {
	result, err := h.delegate.Run(c.Request.Context(), prompt)
	if err != nil {
		logx.Error().Err(err).Msg("chat completion failed")
		status, body := openaiErrorFrom(err)
		respondOpenAIError(c, status, body)
		return
	}

	resp := openai.ChatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelName,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: result.Text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(result.Text) / 4,
			TotalTokens:      len(prompt)/4 + len(result.Text)/4,
		},
	}
	c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) streamChatCompletion(c *gin.Context, modelName, prompt string) {
	writeSSEHeaders(c)

	id := completionID()
	created := time.Now().Unix()

	reader, err := h.delegate.RunStream(c.Request.Context(), prompt)
	if err != nil {
		writeOpenAIStreamError(c, err)
		return
	}
	defer reader.Close()

	for {
		msg, errRecv := reader.Recv()
		if errors.Is(errRecv, io.EOF) {
			break
		}
		if errRecv != nil {
			logx.Error().Err(errRecv).Msg("chat completion stream failed")
			writeOpenAIStreamError(c, errRecv)
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		writeSSE(c, openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelName,
			Choices: []openai.ChatCompletionStreamChoice{{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{
					Role:    openai.ChatMessageRoleAssistant,
					Content: msg.Content,
				},
			}},
		})
	}

	finish := openai.FinishReasonStop
	writeSSE(c, openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelName,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        openai.ChatCompletionStreamChoiceDelta{},
			FinishReason: finish,
		}},
	})
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// writeOpenAIStreamError emits one terminal OpenAI-shaped error event. The
// status stays 200 once the stream has begun.
func writeOpenAIStreamError(c *gin.Context, err error) {
	_, body := openaiErrorFrom(err)
	writeSSE(c, gin.H{"error": body})
}

// completionID generates an OpenAI-style chat completion id: "chatcmpl-"
// followed by 24 hex characters.
func completionID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "chatcmpl-000000000000000000000000"
	}
	return "chatcmpl-" + hex.EncodeToString(buf)
}
