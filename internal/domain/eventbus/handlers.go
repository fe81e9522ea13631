package eventbus

import (
	"yiscore-server-go/internal/platform/logging"
)

// SetupEventHandlers 注册生命周期事件的审计日志处理器。
// 处理器异步投递，不阻塞发布方。
func SetupEventHandlers(logger *logging.Logger) error {
	if err := SubscribeAsync(EventChatCompleted, func(data ChatEventData) {
		logger.InfoTag("事件", "聊天完成 - 模型: %s, 耗时: %s", data.Model, data.Duration)
	}); err != nil {
		return err
	}

	if err := SubscribeAsync(EventChatError, func(data ChatEventData) {
		logger.WarnTag("事件", "聊天失败 - 模型: %s, 原因: %s", data.Model, data.Error)
	}); err != nil {
		return err
	}

	if err := SubscribeAsync(EventStreamStarted, func(data ChatEventData) {
		logger.InfoTag("事件", "流式会话开始 - 模型: %s", data.Model)
	}); err != nil {
		return err
	}

	return SubscribeAsync(EventStreamClosed, func(data ChatEventData) {
		if data.Error != "" {
			logger.WarnTag("事件", "流式会话中断 - 模型: %s, 原因: %s", data.Model, data.Error)
			return
		}
		logger.InfoTag("事件", "流式会话结束 - 模型: %s, 耗时: %s", data.Model, data.Duration)
	})
}
