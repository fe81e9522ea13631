package chat

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

	"github.com/gin-gonic/gin"

	chatdomain "yiscore-server-go/internal/domain/chat"
	"yiscore-server-go/internal/platform/config"
	"yiscore-server-go/internal/platform/logging"
	"yiscore-server-go/internal/platform/storage"
	"yiscore-server-go/internal/transport/http/envelope"
)

type fakeRelay struct {
	response *chatdomain.ChatCompletionResponse
	events   []chatdomain.StreamEvent
	err      error

	lastRequest *chatdomain.ChatCompletionRequest
}

func (f *fakeRelay) ChatCompletion(ctx context.Context, request *chatdomain.ChatCompletionRequest) (*chatdomain.ChatCompletionResponse, error) {
	f.lastRequest = request
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeRelay) ChatCompletionStream(ctx context.Context, request *chatdomain.ChatCompletionRequest) (<-chan chatdomain.StreamEvent, error) {
	f.lastRequest = request
	if f.err != nil {
		return nil, f.err
	}
	events := make(chan chatdomain.StreamEvent, len(f.events))
	for _, event := range f.events {
		events <- event
	}
	close(events)
	return events, nil
}

func newTestRouter(t *testing.T, relay Relay) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, err := logging.NewLogger(&logging.Config{LogLevel: "ERROR", LogDir: t.TempDir(), LogFile: "test.log"})
	if err != nil {
		t.Fatalf("创建日志器失败: %v", err)
	}

	cfg := config.DefaultConfig()
	service, err := NewService(cfg, logger, relay)
	if err != nil {
		t.Fatalf("创建聊天服务失败: %v", err)
	}

	engine := gin.New()
	group := engine.Group("/api/v1")
	if err := service.Register(context.Background(), group); err != nil {
		t.Fatalf("注册路由失败: %v", err)
	}
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func TestCompletionsNonStream(t *testing.T) {
	relay := &fakeRelay{
		response: &chatdomain.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  "Qwen/Qwen3-32B",
			Choices: []map[string]interface{}{
				{"index": float64(0), "message": map[string]interface{}{"role": "assistant", "content": "你好"}},
			},
			Usage: map[string]int{"total_tokens": 7},
		},
	}
	engine := newTestRouter(t, relay)

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"Qwen/Qwen3-32B","messages":[{"role":"user","content":"你好"}]}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, 期望 200, body: %s", recorder.Code, recorder.Body.String())
	}

	var response chatdomain.ChatCompletionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if response.ID != "chatcmpl-test" {
		t.Errorf("ID = %q, 期望 chatcmpl-test", response.ID)
	}
	if response.Usage["total_tokens"] != 7 {
		t.Errorf("total_tokens = %d, 期望 7", response.Usage["total_tokens"])
	}

	if relay.lastRequest == nil {
		t.Fatal("转发层未收到请求")
	}
	if relay.lastRequest.Stream {
		t.Error("非流式请求不应标记 stream")
	}
	if relay.lastRequest.MaxTokens == nil || *relay.lastRequest.MaxTokens != chatdomain.DefaultMaxTokens {
		t.Error("缺省 max_tokens 未被填充")
	}
}

func TestCompletionsStreamFrames(t *testing.T) {
	relay := &fakeRelay{
		events: []chatdomain.StreamEvent{
			{Type: chatdomain.StreamEventMessage, Data: map[string]interface{}{"id": "1", "choices": []interface{}{map[string]interface{}{"delta": map[string]interface{}{"content": "你"}}}}},
			{Type: chatdomain.StreamEventMessage, Data: nil}, // 空负载应被跳过
			{Type: chatdomain.StreamEventMessage, Data: map[string]interface{}{"id": "2"}},
			{Type: chatdomain.StreamEventDone},
			{Type: chatdomain.StreamEventMessage, Data: map[string]interface{}{"id": "3"}}, // done 之后不得再发
		},
	}
	engine := newTestRouter(t, relay)

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, 期望 200", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := recorder.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	body := recorder.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("帧数 = %d, 期望 3, body: %q", len(frames), body)
	}
	if !strings.Contains(frames[0], `"id":"1"`) {
		t.Errorf("第一帧 = %q", frames[0])
	}
	if !strings.Contains(frames[1], `"id":"2"`) {
		t.Errorf("第二帧 = %q", frames[1])
	}
	if frames[2] != "data: [DONE]" {
		t.Errorf("终止帧 = %q, 期望 data: [DONE]", frames[2])
	}
	if strings.Contains(body, `"id":"3"`) {
		t.Error("done 之后仍有帧发出")
	}
}

func TestCompletionsStreamAnomalousClose(t *testing.T) {
	// 上游未发 done 即关闭：已发帧保留，无 [DONE] 终止
	relay := &fakeRelay{
		events: []chatdomain.StreamEvent{
			{Type: chatdomain.StreamEventMessage, Data: map[string]interface{}{"id": "1"}},
		},
	}
	engine := newTestRouter(t, relay)

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	body := recorder.Body.String()
	if !strings.Contains(body, `"id":"1"`) {
		t.Errorf("缺少已转发帧: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("异常断流不应发出 [DONE]")
	}
}

func TestCompletionsValidation(t *testing.T) {
	engine := newTestRouter(t, &fakeRelay{})

	recorder := postJSON(t, engine, "/api/v1/completions", `{"model":"m","messages":[]}`)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, 期望 422", recorder.Code)
	}

	var response envelope.ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("解析信封失败: %v", err)
	}
	if response.Error != "VALIDATION_ERROR" {
		t.Errorf("error = %q, 期望 VALIDATION_ERROR", response.Error)
	}
	found := false
	for _, detail := range response.Details {
		if detail.Field == "messages" {
			found = true
		}
	}
	if !found {
		t.Errorf("details 缺少 messages 字段: %+v", response.Details)
	}
}

func TestCompletionsInvalidRole(t *testing.T) {
	engine := newTestRouter(t, &fakeRelay{})

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"m","messages":[{"role":"robot","content":"hi"}]}`)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, 期望 422", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "messages.0.role") {
		t.Errorf("缺少字段路径 messages.0.role: %s", recorder.Body.String())
	}
}

func TestCompletionsProviderFailure(t *testing.T) {
	engine := newTestRouter(t, &fakeRelay{err: errors.New("上游连接超时")})

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"m","messages":[{"role":"user","content":"hi"}]}`)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("状态码 = %d, 期望 500", recorder.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !strings.Contains(payload["detail"], "上游连接超时") {
		t.Errorf("detail = %q", payload["detail"])
	}
}

func TestCompletionsPatientNotFound(t *testing.T) {
	engine := newTestRouter(t, &fakeRelay{err: storage.ErrPatientNotFound})

	recorder := postJSON(t, engine, "/api/v1/completions",
		`{"model":"m","messages":[{"role":"user","content":"hi"}],"patient_id":99,"include_patient_context":true}`)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, 期望 404", recorder.Code)
	}

	var response envelope.ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("解析信封失败: %v", err)
	}
	if response.Error != "NOT_FOUND" {
		t.Errorf("error = %q, 期望 NOT_FOUND", response.Error)
	}
}

func TestColposcopyMultipart(t *testing.T) {
	relay := &fakeRelay{
		response: &chatdomain.ChatCompletionResponse{ID: "chatcmpl-colpo", Object: "chat.completion"},
	}
	engine := newTestRouter(t, relay)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("request", `{"model":"m","messages":[{"role":"user","content":"解读报告"}]}`); err != nil {
		t.Fatal(err)
	}
	file, err := form.CreateFormFile("files", "report.jpg")
	if err != nil {
		t.Fatal(err)
	}
	file.Write([]byte("fake-image-bytes"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/colposcopy", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, 期望 200, body: %s", recorder.Code, recorder.Body.String())
	}
	if relay.lastRequest == nil || relay.lastRequest.Model != "m" {
		t.Errorf("转发请求不正确: %+v", relay.lastRequest)
	}
}

func TestColposcopyMissingRequestField(t *testing.T) {
	engine := newTestRouter(t, &fakeRelay{})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("other", "x")
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/colposcopy", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, 期望 422", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"request"`) {
		t.Errorf("details 缺少 request 字段: %s", recorder.Body.String())
	}
}
