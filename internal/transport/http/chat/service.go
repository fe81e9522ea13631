package chat

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	chatdomain "yiscore-server-go/internal/domain/chat"
	"yiscore-server-go/internal/platform/config"
	platformerrors "yiscore-server-go/internal/platform/errors"
	"yiscore-server-go/internal/platform/logging"
	"yiscore-server-go/internal/platform/storage"
	"yiscore-server-go/internal/transport/http/envelope"
)

// Relay 聊天编排服务的调用契约（由 domain/chat.Service 实现）
type Relay interface {
	ChatCompletion(ctx context.Context, request *chatdomain.ChatCompletionRequest) (*chatdomain.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, request *chatdomain.ChatCompletionRequest) (<-chan chatdomain.StreamEvent, error)
}

// extractFn 输入提取策略：JSON与multipart两个端点共用同一转发逻辑，
// 仅提取方式不同。
type extractFn func(c *gin.Context) (*chatdomain.ChatCompletionRequest, []chatdomain.FieldViolation, error)

// Service 聊天接口的HTTP传输层实现
type Service struct {
	logger *logging.Logger
	config *config.Config
	relay  Relay
}

// NewService 创建聊天HTTP服务
func NewService(cfg *config.Config, logger *logging.Logger, relay Relay) (*Service, error) {
	if cfg == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "chat.http.new", "config is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "chat.http.new", "logger is required")
	}
	if relay == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "chat.http.new", "relay is required")
	}

	return &Service{
		logger: logger,
		config: cfg,
		relay:  relay,
	}, nil
}

// Register 注册聊天相关的HTTP路由
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/completions", s.handleCompletions)
	router.POST("/colposcopy", s.handleColposcopy)

	s.logger.InfoTag("HTTP", "聊天服务路由注册完成")
	return nil
}

// handleCompletions 聊天完成接口 - 兼容OpenAI格式
func (s *Service) handleCompletions(c *gin.Context) {
	s.relayChat(c, s.extractJSON)
}

// handleColposcopy 接受上传文件，基于算法流程进行报告解读
func (s *Service) handleColposcopy(c *gin.Context) {
	s.relayChat(c, s.extractMultipart)
}

// relayChat 端到端处理一次聊天完成请求：校验 -> 模式选择 -> 转发。
func (s *Service) relayChat(c *gin.Context, extract extractFn) {
	request, violations, err := extract(c)
	if err != nil {
		envelope.WriteHTTPError(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(violations) > 0 {
		envelope.WriteValidationError(c, violations)
		return
	}

	s.logger.InfoChat("流式请求: %v, 模型: %s", request.Stream, request.Model)

	if request.Stream {
		s.relayStream(c, request)
		return
	}

	response, err := s.relay.ChatCompletion(c.Request.Context(), request)
	if err != nil {
		s.writeRelayError(c, err)
		return
	}

	// 单次完成：提供者结果原样作为响应体
	c.JSON(http.StatusOK, response)
}

// relayStream 将提供者的事件序列转发为SSE帧。
// 每个非空 message 事件发出一帧 data: <json>，done 事件发出 data: [DONE] 并立即终止，
// 即使上游序列尚未耗尽也不再发出任何帧。
func (s *Service) relayStream(c *gin.Context, request *chatdomain.ChatCompletionRequest) {
	events, err := s.relay.ChatCompletionStream(c.Request.Context(), request)
	if err != nil {
		// 首字节尚未写出，仍可返回结构化错误
		s.writeRelayError(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	writer := c.Writer
	for event := range events {
		switch event.Type {
		case chatdomain.StreamEventMessage:
			if len(event.Data) == 0 {
				continue // 空负载不产生帧
			}
			payload, err := sonic.Marshal(event.Data)
			if err != nil {
				// 流已开始，无法再返回结构化错误，只能记录并跳过该帧
				s.logger.ErrorTag("聊天", "序列化流式负载失败: %v", err)
				continue
			}
			if _, err := writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
				return
			}
			writer.Flush()
		case chatdomain.StreamEventDone:
			_, _ = io.WriteString(writer, "data: [DONE]\n\n")
			writer.Flush()
			return
		}
	}
	// 上游未以 done 结束即关闭：异常断流，客户端应按非正常结束处理
}

// writeRelayError 首字节前的失败处理：业务异常走统一信封，
// 其余异常保持与旧版一致的 {"detail": ...} 500 响应（兼容性保留）。
func (s *Service) writeRelayError(c *gin.Context, err error) {
	var businessErr *envelope.BusinessError
	if errors.As(err, &businessErr) {
		envelope.WriteBusinessError(c, businessErr)
		return
	}
	if errors.Is(err, storage.ErrPatientNotFound) {
		envelope.WriteBusinessError(c, envelope.NewNotFoundError("患者不存在", "patient_id"))
		return
	}

	s.logger.ErrorTag("聊天", "请求处理失败: %v", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

// extractJSON 从JSON请求体提取聊天请求
func (s *Service) extractJSON(c *gin.Context) (*chatdomain.ChatCompletionRequest, []chatdomain.FieldViolation, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, nil, err
	}

	request, violations := chatdomain.DecodeRequest(body)
	return request, violations, nil
}

// extractMultipart 从multipart表单提取聊天请求与上传文件。
// 文件暂不参与转发逻辑，作为后续多模态输入的占位。
func (s *Service) extractMultipart(c *gin.Context) (*chatdomain.ChatCompletionRequest, []chatdomain.FieldViolation, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, err
	}

	values := form.Value["request"]
	if len(values) == 0 {
		return nil, []chatdomain.FieldViolation{{
			Field:   "request",
			Message: "multipart 表单缺少 request 字段",
			Code:    chatdomain.CodeMissing,
		}}, nil
	}

	request, violations := chatdomain.DecodeRequest([]byte(values[0]))
	if len(violations) > 0 {
		return nil, violations, nil
	}

	files := collectFiles(form)
	if len(files) > 0 {
		s.logger.InfoChat("收到上传文件 %d 个", len(files))
	}

	return request, nil, nil
}

func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	var files []*multipart.FileHeader
	for _, headers := range form.File {
		files = append(files, headers...)
	}
	return files
}
