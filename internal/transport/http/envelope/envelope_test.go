package envelope

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"yiscore-server-go/internal/domain/chat"
)

func newTestContext(t *testing.T, path string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, path, nil)
	c.Set(RequestIDKey, "req-123")
	return c, recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{400, "BAD_REQUEST"},
		{401, "UNAUTHORIZED"},
		{403, "FORBIDDEN"},
		{404, "NOT_FOUND"},
		{405, "METHOD_NOT_ALLOWED"},
		{409, "CONFLICT"},
		{422, "UNPROCESSABLE_ENTITY"},
		{500, "INTERNAL_SERVER_ERROR"},
		{418, "HTTP_ERROR"},
		{502, "HTTP_ERROR"},
	}

	for _, tt := range tests {
		if got := CodeForStatus(tt.status); got != tt.want {
			t.Errorf("CodeForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestWriteBusinessError_NotFound(t *testing.T) {
	c, recorder := newTestContext(t, "/api/v1/completions")

	WriteBusinessError(c, NewNotFoundError("患者不存在", "patient_id"))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	resp := decodeEnvelope(t, recorder)

	if resp.Success {
		t.Error("success flag must be false")
	}
	if resp.Error != "NOT_FOUND" {
		t.Errorf("expected error NOT_FOUND, got %s", resp.Error)
	}
	if resp.StatusCode != 404 {
		t.Errorf("expected status_code 404, got %d", resp.StatusCode)
	}
	if len(resp.Details) != 1 {
		t.Fatalf("expected 1 detail, got %d", len(resp.Details))
	}
	if resp.Details[0].Field != "patient_id" {
		t.Errorf("expected field patient_id, got %s", resp.Details[0].Field)
	}
	if resp.Details[0].Code != "NOT_FOUND" {
		t.Errorf("expected detail code NOT_FOUND, got %s", resp.Details[0].Code)
	}
	if resp.Path != "/api/v1/completions" {
		t.Errorf("expected request path, got %s", resp.Path)
	}
	if resp.RequestID != "req-123" {
		t.Errorf("expected request id, got %s", resp.RequestID)
	}
	if resp.Timestamp == "" {
		t.Error("timestamp must be stamped")
	}
}

func TestWriteValidationError_ExpandsPerField(t *testing.T) {
	c, recorder := newTestContext(t, "/api/v1/completions")

	WriteValidationError(c, []chat.FieldViolation{
		{Field: "messages", Message: "messages 不能为空", Code: "missing"},
		{Field: "messages.0.role", Message: "role 非法", Code: "enum"},
	})

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	resp := decodeEnvelope(t, recorder)

	if resp.Error != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", resp.Error)
	}
	if len(resp.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(resp.Details))
	}
	if resp.Details[0].Field != "messages" || resp.Details[1].Field != "messages.0.role" {
		t.Errorf("unexpected detail fields: %+v", resp.Details)
	}
	for _, detail := range resp.Details {
		if detail.Type != "validation_error" {
			t.Errorf("expected validation_error type, got %s", detail.Type)
		}
	}
}

func TestWriteUnexpectedError_DevelopmentMode(t *testing.T) {
	c, recorder := newTestContext(t, "/api/v1/completions")

	WriteUnexpectedError(c, errors.New("boom"), true, nil)

	resp := decodeEnvelope(t, recorder)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	// 开发环境暴露异常类型名
	if resp.Message == "" || resp.Message == "服务器内部错误，请稍后重试" {
		t.Errorf("development message should contain exception type, got %q", resp.Message)
	}
	if len(resp.Details) != 1 {
		t.Fatalf("expected 1 detail, got %d", len(resp.Details))
	}
}

func TestWriteUnexpectedError_ProductionMode(t *testing.T) {
	c, recorder := newTestContext(t, "/api/v1/completions")

	WriteUnexpectedError(c, errors.New("boom"), false, nil)

	resp := decodeEnvelope(t, recorder)
	if resp.Message != "服务器内部错误，请稍后重试" {
		t.Errorf("production message must be generic, got %q", resp.Message)
	}
	if len(resp.Details) != 0 {
		t.Errorf("production envelope must not carry details, got %+v", resp.Details)
	}
}

func TestWriteHTTPError_UnknownStatus(t *testing.T) {
	c, recorder := newTestContext(t, "/api/v1/anything")

	WriteHTTPError(c, http.StatusTeapot, "奇怪的状态")

	resp := decodeEnvelope(t, recorder)
	if resp.Error != "HTTP_ERROR" {
		t.Errorf("expected HTTP_ERROR for unknown status, got %s", resp.Error)
	}
}
