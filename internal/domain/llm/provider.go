package llm

import (
	"context"
	"fmt"
	"sync"

	"yiscore-server-go/internal/domain/chat"
)

// Config LLM提供者配置
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Provider 完成服务提供者接口。ChatCompletionStream 返回惰性、有限、
// 不可重放的事件序列；事件通道在 done 事件或上游出错后关闭。
type Provider interface {
	Initialize() error
	ChatCompletion(ctx context.Context, request *chat.ChatCompletionRequest) (*chat.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, request *chat.ChatCompletionRequest) (<-chan chat.StreamEvent, error)
	Cleanup() error
}

// Factory 提供者工厂函数
type Factory func(config *Config) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册提供者工厂
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create 根据类型创建提供者实例
func Create(name string, config *Config) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未注册的LLM提供者类型: %s", name)
	}
	return factory(config)
}

// BaseProvider 提供者公共部分
type BaseProvider struct {
	config *Config
}

// NewBaseProvider 创建基础提供者
func NewBaseProvider(config *Config) *BaseProvider {
	return &BaseProvider{config: config}
}

// Config 返回提供者配置
func (p *BaseProvider) Config() *Config {
	return p.config
}
