package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"github.com/fintalk/server/internal/agent/model"
	"github.com/fintalk/server/internal/core"
	errx "github.com/fintalk/server/internal/core/error"
	"github.com/fintalk/server/internal/ingest"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type fakeIngester struct {
	result *ingest.Result
	err    error
}

func (f *fakeIngester) Ingest(ctx context.Context, filename string, data []byte) (*ingest.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDelegate struct {
	lastPrompt string
	result     *model.Result
	tokens     []string
	runErr     error
	streamErr  error
	midErr     error
}

func (f *fakeDelegate) Run(ctx context.Context, prompt string) (*model.Result, error) {
	f.lastPrompt = prompt
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.result, nil
}

func (f *fakeDelegate) RunStream(ctx context.Context, prompt string) (*schema.StreamReader[*schema.Message], error) {
	f.lastPrompt = prompt
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	reader, writer := schema.Pipe[*schema.Message](len(f.tokens) + 1)
	go func() {
		defer writer.Close()
		for _, tok := range f.tokens {
			writer.Send(&schema.Message{Role: schema.Assistant, Content: tok}, nil)
		}
		if f.midErr != nil {
			writer.Send(nil, f.midErr)
		}
	}()
	return reader, nil
}

func newTestRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if cfg.DB == nil {
		cfg.DB = &fakePinger{}
	}
	if cfg.Vector == nil {
		cfg.Vector = &fakePinger{}
	}
	cfg.Environment = core.Testing
	return NewRouter(cfg)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %q", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestHealthAllHealthy(t *testing.T) {
	router := newTestRouter(RouterConfig{BedrockReady: true, Delegate: &fakeDelegate{}})

	rec := doJSON(t, router, http.MethodGet, "/health/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("overall status = %v", body["status"])
	}
}

func TestHealthReportsAllServicesWhenOneFails(t *testing.T) {
	router := newTestRouter(RouterConfig{
		DB:           &fakePinger{err: errors.New("connection refused")},
		BedrockReady: true,
		Delegate:     &fakeDelegate{},
	})

	rec := doJSON(t, router, http.MethodGet, "/health/", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "unhealthy" {
		t.Fatalf("overall status = %v", body["status"])
	}
	services := body["services"].(map[string]any)
	for _, name := range []string{"postgresql", "opensearch", "aws_bedrock"} {
		if _, ok := services[name]; !ok {
			t.Fatalf("service %s missing from report", name)
		}
	}
	pg := services["postgresql"].(map[string]any)
	if pg["status"] != "unhealthy" {
		t.Fatalf("postgresql status = %v", pg["status"])
	}
	os := services["opensearch"].(map[string]any)
	if os["status"] != "healthy" {
		t.Fatalf("opensearch status = %v", os["status"])
	}
}

func uploadRequest(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadSuccess(t *testing.T) {
	router := newTestRouter(RouterConfig{
		Pipeline: &fakeIngester{result: &ingest.Result{
			DocumentID:    "doc-1",
			ChunksCreated: 3,
			Filename:      "loans.txt",
		}},
	})

	body, contentType := uploadRequest(t, "loans.txt", []byte("personal loan details"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["status"] != "success" || got["document_id"] != "doc-1" {
		t.Fatalf("unexpected body: %v", got)
	}
	if got["chunks_created"].(float64) != 3 || got["filename"] != "loans.txt" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestUploadUnsupportedExtension(t *testing.T) {
	router := newTestRouter(RouterConfig{Pipeline: &fakeIngester{}})

	body, contentType := uploadRequest(t, "malware.exe", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %q, want VALIDATION_ERROR", code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	router := newTestRouter(RouterConfig{Pipeline: &fakeIngester{}})

	rec := doJSON(t, router, http.MethodPost, "/documents/upload/", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %q, want VALIDATION_ERROR", code)
	}
}

func TestUploadPipelineErrorKeepsCode(t *testing.T) {
	router := newTestRouter(RouterConfig{
		Pipeline: &fakeIngester{err: errx.New(errx.CodeIndexing, "Failed to index document", "bulk rejected")},
	})

	body, contentType := uploadRequest(t, "loans.txt", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if code := errorCode(t, rec); code != "INDEXING_ERROR" {
		t.Fatalf("code = %q, want INDEXING_ERROR", code)
	}
}

func TestQueryEmptyMessage(t *testing.T) {
	router := newTestRouter(RouterConfig{Delegate: &fakeDelegate{}})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{"message": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", errObj["code"])
	}
	details := errObj["details"].(map[string]any)
	if _, ok := details["message"]; !ok {
		t.Fatalf("details.message missing: %v", details)
	}
}

func TestQueryBatchSuccess(t *testing.T) {
	delegate := &fakeDelegate{result: &model.Result{
		Text:      "Your card has been blocked.",
		ToolsUsed: []string{"block_credit_card"},
	}}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{
		"message":      "Block my credit card",
		"phone_number": "+1234567890",
		"stream":       false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if want := "Block my credit card\n\n[User phone number: +1234567890]"; delegate.lastPrompt != want {
		t.Fatalf("prompt = %q, want %q", delegate.lastPrompt, want)
	}

	body := decodeBody(t, rec)
	if body["status"] != "success" || body["response"] != "Your card has been blocked." {
		t.Fatalf("unexpected body: %v", body)
	}
	tools := body["tools_used"].([]any)
	if len(tools) != 1 || tools[0] != "block_credit_card" {
		t.Fatalf("tools_used = %v", tools)
	}
	if _, ok := body["sources"].([]any); !ok {
		t.Fatalf("sources missing or not a list: %v", body["sources"])
	}
	if body["timestamp"] == "" {
		t.Fatal("timestamp missing")
	}
}

func TestQueryBatchAgentUnavailable(t *testing.T) {
	router := newTestRouter(RouterConfig{Delegate: nil})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{
		"message": "hello",
		"stream":  false,
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("code = %q", code)
	}
}

func TestQueryStreamAgentUnavailable(t *testing.T) {
	router := newTestRouter(RouterConfig{Delegate: nil})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{"message": "hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Fatalf("expected SSE error event, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "SERVICE_UNAVAILABLE") {
		t.Fatalf("expected SERVICE_UNAVAILABLE in body, got %q", rec.Body.String())
	}
}

func TestQueryStreamTokensThenDone(t *testing.T) {
	delegate := &fakeDelegate{tokens: []string{"Based", " on", " the"}}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{"message": "question"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Header().Get("Cache-Control") != "no-cache" || rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("missing SSE headers: %v", rec.Header())
	}

	want := `data: {"content":"Based","type":"token"}` + "\n\n" +
		`data: {"content":" on","type":"token"}` + "\n\n" +
		`data: {"content":" the","type":"token"}` + "\n\n" +
		`data: {"type":"done"}` + "\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestQueryStreamErrorEvent(t *testing.T) {
	delegate := &fakeDelegate{
		tokens: []string{"partial"},
		midErr: errx.New(errx.CodeAgentExecution, "Agent execution failed", "model error"),
	}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/", gin.H{"message": "question"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 once stream has begun", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"token"`) {
		t.Fatalf("expected token before error, got %q", body)
	}
	if !strings.Contains(body, "AGENT_EXECUTION_ERROR") {
		t.Fatalf("expected error event, got %q", body)
	}
	if strings.Contains(body, `"type":"done"`) {
		t.Fatalf("done must not follow an error, got %q", body)
	}
}

func TestChatCompletionsBatch(t *testing.T) {
	delegate := &fakeDelegate{result: &model.Result{Text: "Hello there."}}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/chat/completions", gin.H{
		"model": "fintalk-agent",
		"messages": []gin.H{
			{"role": "user", "content": "Hi [phone: +1234567890]"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if strings.Contains(delegate.lastPrompt, "[phone:") {
		t.Fatalf("phone token leaked into prompt: %q", delegate.lastPrompt)
	}
	if !strings.Contains(delegate.lastPrompt, "[User phone number: +1234567890]") {
		t.Fatalf("phone annotation missing from prompt: %q", delegate.lastPrompt)
	}

	body := decodeBody(t, rec)
	id := body["id"].(string)
	if !strings.HasPrefix(id, "chatcmpl-") || len(id) != len("chatcmpl-")+24 {
		t.Fatalf("unexpected id: %q", id)
	}
	if body["object"] != "chat.completion" || body["model"] != "fintalk-agent" {
		t.Fatalf("unexpected body: %v", body)
	}
	choices := body["choices"].([]any)
	choice := choices[0].(map[string]any)
	msg := choice["message"].(map[string]any)
	if msg["role"] != "assistant" || msg["content"] != "Hello there." {
		t.Fatalf("unexpected message: %v", msg)
	}
	if choice["finish_reason"] != "stop" {
		t.Fatalf("finish_reason = %v", choice["finish_reason"])
	}
	usage := body["usage"].(map[string]any)
	if usage["completion_tokens"].(float64) != float64(len("Hello there.")/4) {
		t.Fatalf("unexpected usage: %v", usage)
	}
}

func TestChatCompletionsHistoryFolding(t *testing.T) {
	delegate := &fakeDelegate{result: &model.Result{Text: "ok"}}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/chat/completions", gin.H{
		"model": "fintalk-agent",
		"messages": []gin.H{
			{"role": "system", "content": "Be brief."},
			{"role": "user", "content": "What loans do you offer?"},
			{"role": "assistant", "content": "We offer personal loans."},
			{"role": "user", "content": "What are the rates?"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	prompt := delegate.lastPrompt
	for _, part := range []string{"Be brief.", "User: What loans do you offer?", "Assistant: We offer personal loans."} {
		if !strings.Contains(prompt, part) {
			t.Fatalf("prompt missing %q: %q", part, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "What are the rates?") {
		t.Fatalf("live query must come last: %q", prompt)
	}
}

func TestChatCompletionsEmptyMessages(t *testing.T) {
	router := newTestRouter(RouterConfig{Delegate: &fakeDelegate{}})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/chat/completions", gin.H{
		"model":    "fintalk-agent",
		"messages": []gin.H{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["type"] != "invalid_request_error" {
		t.Fatalf("error type = %v", errObj["type"])
	}
}

func TestChatCompletionsStream(t *testing.T) {
	delegate := &fakeDelegate{tokens: []string{"Hel", "lo"}}
	router := newTestRouter(RouterConfig{Delegate: delegate})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/chat/completions", gin.H{
		"model":    "fintalk-agent",
		"messages": []gin.H{{"role": "user", "content": "Hi"}},
		"stream":   true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("missing [DONE] sentinel: %q", body)
	}

	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	// two content chunks, one finish chunk, one [DONE] sentinel
	if len(lines) != 4 {
		t.Fatalf("event count = %d, want 4: %q", len(lines), body)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &first); err != nil {
		t.Fatalf("decode first chunk: %v", err)
	}
	if first["object"] != "chat.completion.chunk" {
		t.Fatalf("object = %v", first["object"])
	}
	var finish map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &finish); err != nil {
		t.Fatalf("decode finish chunk: %v", err)
	}
	choice := finish["choices"].([]any)[0].(map[string]any)
	if choice["finish_reason"] != "stop" {
		t.Fatalf("finish_reason = %v", choice["finish_reason"])
	}
}

func TestChatCompletionsAgentUnavailable(t *testing.T) {
	router := newTestRouter(RouterConfig{Delegate: nil})

	rec := doJSON(t, router, http.MethodPost, "/agent/query/chat/completions", gin.H{
		"model":    "fintalk-agent",
		"messages": []gin.H{{"role": "user", "content": "Hi"}},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["type"] != "service_unavailable_error" {
		t.Fatalf("error type = %v", errObj["type"])
	}
}
