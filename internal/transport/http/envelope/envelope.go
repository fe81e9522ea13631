package envelope

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"yiscore-server-go/internal/domain/chat"
	"yiscore-server-go/internal/platform/logging"
)

// RequestIDKey gin上下文中请求ID的键名
const RequestIDKey = "request_id"

// ErrorDetail 错误详情
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse 标准错误响应格式。所有失败路径共用同一外壳，
// 与失败来源无关。
type ErrorResponse struct {
	Success    bool          `json:"success"`
	Error      string        `json:"error"`
	Message    string        `json:"message"`
	Details    []ErrorDetail `json:"details"`
	StatusCode int           `json:"status_code"`
	Timestamp  string        `json:"timestamp"`
	Path       string        `json:"path,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
}

// BusinessError 业务异常：携带机器可读错误码与可选的出错字段
type BusinessError struct {
	StatusCode int
	Message    string
	ErrorCode  string
	Field      string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务异常
func NewBusinessError(statusCode int, message, errorCode, field string) *BusinessError {
	return &BusinessError{
		StatusCode: statusCode,
		Message:    message,
		ErrorCode:  errorCode,
		Field:      field,
	}
}

// NewValidationError 验证异常（422）
func NewValidationError(message, field string) *BusinessError {
	return NewBusinessError(http.StatusUnprocessableEntity, message, "VALIDATION_ERROR", field)
}

// NewAuthenticationError 认证异常（401）
func NewAuthenticationError(message string) *BusinessError {
	if message == "" {
		message = "请先登录"
	}
	return NewBusinessError(http.StatusUnauthorized, message, "AUTHENTICATION_ERROR", "")
}

// NewAuthorizationError 授权异常（403）
func NewAuthorizationError(message string) *BusinessError {
	if message == "" {
		message = "权限不足"
	}
	return NewBusinessError(http.StatusForbidden, message, "AUTHORIZATION_ERROR", "")
}

// NewNotFoundError 资源不存在异常（404）
func NewNotFoundError(message, field string) *BusinessError {
	if message == "" {
		message = "资源不存在"
	}
	return NewBusinessError(http.StatusNotFound, message, "NOT_FOUND", field)
}

// NewConflictError 资源冲突异常（409）
func NewConflictError(message string) *BusinessError {
	return NewBusinessError(http.StatusConflict, message, "CONFLICT", "")
}

// statusErrorCodes 固定的HTTP状态码到错误码映射表
var statusErrorCodes = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusUnauthorized:        "UNAUTHORIZED",
	http.StatusForbidden:           "FORBIDDEN",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusMethodNotAllowed:    "METHOD_NOT_ALLOWED",
	http.StatusConflict:            "CONFLICT",
	http.StatusUnprocessableEntity: "UNPROCESSABLE_ENTITY",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
}

// CodeForStatus 返回状态码对应的错误码，未收录的状态码统一映射为 HTTP_ERROR
func CodeForStatus(status int) string {
	if code, ok := statusErrorCodes[status]; ok {
		return code
	}
	return "HTTP_ERROR"
}

// New 创建标准错误响应，统一加盖UTC时间戳、请求路径与请求ID。
func New(c *gin.Context, statusCode int, errorCode, message string, details []ErrorDetail) ErrorResponse {
	if details == nil {
		details = []ErrorDetail{}
	}

	resp := ErrorResponse{
		Success:    false,
		Error:      errorCode,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC().Format("2006-01-02T15:04:05.000") + "Z",
	}
	if c != nil {
		if c.Request != nil {
			resp.Path = c.Request.URL.Path
		}
		resp.RequestID = c.GetString(RequestIDKey)
	}
	return resp
}

// WriteHTTPError 写出标准HTTP异常响应，错误码取自固定映射表
func WriteHTTPError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, New(c, statusCode, CodeForStatus(statusCode), message, nil))
}

// WriteBusinessError 写出业务异常响应
func WriteBusinessError(c *gin.Context, err *BusinessError) {
	var details []ErrorDetail
	if err.Field != "" || err.ErrorCode != "" {
		details = append(details, ErrorDetail{
			Type:    "business_error",
			Message: err.Message,
			Field:   err.Field,
			Code:    err.ErrorCode,
		})
	}

	errorCode := err.ErrorCode
	if errorCode == "" {
		errorCode = "BUSINESS_ERROR"
	}

	c.AbortWithStatusJSON(err.StatusCode, New(c, err.StatusCode, errorCode, err.Message, details))
}

// WriteValidationError 将校验违规展开为逐字段的错误详情（422）
func WriteValidationError(c *gin.Context, violations []chat.FieldViolation) {
	details := make([]ErrorDetail, 0, len(violations))
	for _, v := range violations {
		details = append(details, ErrorDetail{
			Type:    "validation_error",
			Message: v.Message,
			Field:   v.Field,
			Code:    v.Code,
		})
	}

	c.AbortWithStatusJSON(http.StatusUnprocessableEntity,
		New(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "请求数据验证失败", details))
}

// WriteUnexpectedError 写出未分类异常响应。完整堆栈始终进日志；
// 客户端可见信息仅开发环境包含异常类型与原文，否则为通用提示。
func WriteUnexpectedError(c *gin.Context, err error, isDevelopment bool, logger *logging.Logger) {
	if logger != nil {
		logger.Error("未处理异常: %T: %v", err, err)
		logger.Error("堆栈: %s", debug.Stack())
	}

	var message string
	var details []ErrorDetail
	if isDevelopment {
		message = fmt.Sprintf("%T: %v", err, err)
		details = []ErrorDetail{{
			Type:    "system_error",
			Message: err.Error(),
			Code:    fmt.Sprintf("%T", err),
		}}
	} else {
		message = "服务器内部错误，请稍后重试"
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError,
		New(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, details))
}
