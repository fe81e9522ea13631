package chat

import (
	"context"
	"time"

	"gorm.io/gorm"

	"yiscore-server-go/internal/domain/eventbus"
	"yiscore-server-go/internal/domain/session"
	"yiscore-server-go/internal/platform/errors"
	"yiscore-server-go/internal/platform/logging"
	"yiscore-server-go/internal/platform/storage"
)

// CompletionProvider 完成服务提供者的调用契约
type CompletionProvider interface {
	ChatCompletion(ctx context.Context, request *ChatCompletionRequest) (*ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, request *ChatCompletionRequest) (<-chan StreamEvent, error)
}

// Service 聊天完成编排服务：装配患者上下文、调用完成服务提供者、
// 记录会话活动并发布生命周期事件。
type Service struct {
	provider       CompletionProvider
	database       *storage.Database
	contextBuilder *ContextBuilder
	sessions       session.Store
	logger         *logging.Logger
}

// NewService 创建聊天服务
func NewService(
	provider CompletionProvider,
	database *storage.Database,
	contextBuilder *ContextBuilder,
	sessions session.Store,
	logger *logging.Logger,
) (*Service, error) {
	if provider == nil {
		return nil, errors.New(errors.KindConfig, "chat.new", "completion provider is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "chat.new", "logger is required")
	}

	return &Service{
		provider:       provider,
		database:       database,
		contextBuilder: contextBuilder,
		sessions:       sessions,
		logger:         logger,
	}, nil
}

// ChatCompletion 执行单次完成
func (s *Service) ChatCompletion(ctx context.Context, request *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	start := time.Now()

	prepared, err := s.prepare(ctx, request)
	if err != nil {
		return nil, err
	}

	response, err := s.provider.ChatCompletion(ctx, prepared)
	if err != nil {
		eventbus.Publish(eventbus.EventChatError, eventbus.ChatEventData{
			SessionID: request.SessionID,
			Model:     request.Model,
			PatientID: request.PatientID,
			Error:     err.Error(),
		})
		return nil, errors.Wrap(errors.KindProvider, "chat.completion", "完成服务调用失败", err)
	}

	s.touchSession(ctx, request)
	eventbus.Publish(eventbus.EventChatCompleted, eventbus.ChatEventData{
		SessionID: request.SessionID,
		Model:     request.Model,
		PatientID: request.PatientID,
		Duration:  time.Since(start),
	})

	return response, nil
}

// ChatCompletionStream 执行流式完成，返回惰性事件序列。
// 上游通道关闭（done 事件之后或中途失败）时本层转发的通道同样关闭。
func (s *Service) ChatCompletionStream(ctx context.Context, request *ChatCompletionRequest) (<-chan StreamEvent, error) {
	start := time.Now()

	prepared, err := s.prepare(ctx, request)
	if err != nil {
		return nil, err
	}

	upstream, err := s.provider.ChatCompletionStream(ctx, prepared)
	if err != nil {
		eventbus.Publish(eventbus.EventChatError, eventbus.ChatEventData{
			SessionID: request.SessionID,
			Model:     request.Model,
			PatientID: request.PatientID,
			Stream:    true,
			Error:     err.Error(),
		})
		return nil, errors.Wrap(errors.KindProvider, "chat.stream", "完成服务流式调用失败", err)
	}

	s.touchSession(ctx, request)
	eventbus.Publish(eventbus.EventStreamStarted, eventbus.ChatEventData{
		SessionID: request.SessionID,
		Model:     request.Model,
		PatientID: request.PatientID,
		Stream:    true,
	})

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		for event := range upstream {
			select {
			case events <- event:
			case <-ctx.Done():
				// 客户端断开，放弃转发并让上游随 context 取消
				eventbus.Publish(eventbus.EventStreamClosed, eventbus.ChatEventData{
					SessionID: request.SessionID,
					Model:     request.Model,
					Stream:    true,
					Duration:  time.Since(start),
					Error:     ctx.Err().Error(),
				})
				return
			}
		}
		eventbus.Publish(eventbus.EventStreamClosed, eventbus.ChatEventData{
			SessionID: request.SessionID,
			Model:     request.Model,
			Stream:    true,
			Duration:  time.Since(start),
		})
	}()

	return events, nil
}

// prepare 在调用提供者前装配患者上下文。上下文合并与否只影响消息序列，
// 原请求不被修改。
func (s *Service) prepare(ctx context.Context, request *ChatCompletionRequest) (*ChatCompletionRequest, error) {
	if request.PatientID == nil {
		s.logger.InfoChat("聊天请求不包含患者上下文")
		return request, nil
	}

	s.logger.InfoChat("聊天请求包含患者上下文 - 患者ID: %d, 启用上下文: %v",
		*request.PatientID, request.IncludePatientContext)

	if !request.IncludePatientContext {
		return request, nil
	}
	if s.contextBuilder == nil || s.database == nil {
		s.logger.WarnTag("聊天", "患者上下文组件未配置，跳过合并")
		return request, nil
	}

	var contextMessage *ChatMessage
	err := s.database.WithSession(ctx, func(tx *gorm.DB) error {
		msg, err := s.contextBuilder.BuildPatientContext(tx, *request.PatientID)
		if err != nil {
			return err
		}
		contextMessage = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := *request
	merged.Messages = append([]ChatMessage{*contextMessage}, request.Messages...)
	s.logger.InfoChat("患者上下文已合并 - 患者ID: %d", *request.PatientID)
	return &merged, nil
}

func (s *Service) touchSession(ctx context.Context, request *ChatCompletionRequest) {
	if s.sessions == nil || request.SessionID == "" {
		return
	}
	if err := s.sessions.Touch(ctx, request.SessionID, request.Model); err != nil {
		// 会话活动记录失败不影响请求本身
		s.logger.WarnTag("会话", "记录会话活动失败: %v", err)
	}
}
