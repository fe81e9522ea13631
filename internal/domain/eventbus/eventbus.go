package eventbus

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// 事件类型定义
const (
	// 聊天相关事件
	EventChatStarted   = "chat:started"
	EventChatCompleted = "chat:completed"
	EventChatError     = "chat:error"

	// 流式相关事件
	EventStreamStarted = "stream:started"
	EventStreamClosed  = "stream:closed"
)

// ChatEventData 聊天事件负载
type ChatEventData struct {
	SessionID string        `json:"session_id,omitempty"`
	Model     string        `json:"model"`
	PatientID *uint         `json:"patient_id,omitempty"`
	Stream    bool          `json:"stream"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

var (
	instance evbus.Bus
	once     sync.Once
)

// Get 获取全局事件总线实例
func Get() evbus.Bus {
	once.Do(func() {
		instance = evbus.New()
	})
	return instance
}

// Publish 发布事件
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// Subscribe 订阅事件
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync 订阅事件（异步投递，transactional=false 允许并发处理）
func SubscribeAsync(topic string, fn interface{}) error {
	return Get().SubscribeAsync(topic, fn, false)
}

// Unsubscribe 取消订阅
func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}

// WaitAsync 等待所有异步回调完成（测试用）
func WaitAsync() {
	Get().WaitAsync()
}
