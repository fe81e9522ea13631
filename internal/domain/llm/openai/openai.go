package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"

	"yiscore-server-go/internal/domain/chat"
	"yiscore-server-go/internal/domain/llm"
)

// Provider OpenAI兼容端点的LLM提供者
type Provider struct {
	*llm.BaseProvider
	client *openai.Client
}

// 注册提供者
func init() {
	llm.Register("openai", NewProvider)
}

// NewProvider 创建OpenAI提供者
func NewProvider(config *llm.Config) (llm.Provider, error) {
	return &Provider{
		BaseProvider: llm.NewBaseProvider(config),
	}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("missing OpenAI API key")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	return nil
}

// ChatCompletion 执行单次完成请求
func (p *Provider) ChatCompletion(ctx context.Context, request *chat.ChatCompletionRequest) (*chat.ChatCompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(request, false))
	if err != nil {
		return nil, fmt.Errorf("OpenAI服务响应异常: %w", err)
	}

	choices := make([]map[string]interface{}, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		converted, err := toMap(choice)
		if err != nil {
			return nil, err
		}
		choices = append(choices, converted)
	}

	result := &chat.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  chat.ObjectChatCompletion,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
	return result, nil
}

// ChatCompletionStream 执行流式完成请求。返回的通道按上游顺序产生 message 事件，
// 以一个 done 事件结束后关闭；上游出错时直接关闭通道（流已开始则无法再报结构化错误）。
func (p *Provider) ChatCompletionStream(ctx context.Context, request *chat.ChatCompletionRequest) (<-chan chat.StreamEvent, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(request, true))
	if err != nil {
		return nil, fmt.Errorf("OpenAI服务响应异常: %w", err)
	}

	eventChan := make(chan chat.StreamEvent, 10)

	go func() {
		defer close(eventChan)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					eventChan <- chat.StreamEvent{Type: chat.StreamEventDone}
				}
				return
			}

			data, err := toMap(response)
			if err != nil {
				return
			}

			select {
			case eventChan <- chat.StreamEvent{Type: chat.StreamEventMessage, Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventChan, nil
}

// buildRequest 转换为go-openai的请求格式
func (p *Provider) buildRequest(request *chat.ChatCompletionRequest, stream bool) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(request.Messages))
	for i, msg := range request.Messages {
		chatMessage := openai.ChatCompletionMessage{
			Role: msg.Role,
			Name: msg.Name,
		}
		if msg.Content != nil {
			chatMessage.Content = *msg.Content
		}

		// tool_call_id字段（tool消息必需）
		if msg.ToolCallID != "" {
			chatMessage.ToolCallID = msg.ToolCallID
		}

		// assistant消息中的工具调用
		if len(msg.ToolCalls) > 0 {
			openaiToolCalls := make([]openai.ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				openaiToolCalls = append(openaiToolCalls, openai.ToolCall{
					ID:   stringField(tc, "id"),
					Type: openai.ToolType(stringField(tc, "type")),
					Function: openai.FunctionCall{
						Name:      nestedStringField(tc, "function", "name"),
						Arguments: nestedStringField(tc, "function", "arguments"),
					},
				})
			}
			chatMessage.ToolCalls = openaiToolCalls
		}

		chatMessages[i] = chatMessage
	}

	req := openai.ChatCompletionRequest{
		Model:    request.Model,
		Messages: chatMessages,
		Stream:   stream,
	}

	if request.MaxTokens != nil {
		req.MaxTokens = *request.MaxTokens
	}
	if request.Temperature != nil {
		req.Temperature = float32(*request.Temperature)
	}
	if request.TopP != nil {
		req.TopP = float32(*request.TopP)
	}
	if request.N != nil {
		req.N = *request.N
	}
	if request.Stop != nil {
		req.Stop = request.Stop.Values
	}
	if request.PresencePenalty != nil {
		req.PresencePenalty = float32(*request.PresencePenalty)
	}
	if request.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*request.FrequencyPenalty)
	}
	if len(request.LogitBias) > 0 {
		bias := make(map[string]int, len(request.LogitBias))
		for token, value := range request.LogitBias {
			bias[token] = int(value)
		}
		req.LogitBias = bias
	}
	if request.User != "" {
		req.User = request.User
	}

	if len(request.Tools) > 0 {
		openaiTools := make([]openai.Tool, 0, len(request.Tools))
		for _, tool := range request.Tools {
			openaiTools = append(openaiTools, openai.Tool{
				Type: openai.ToolType(tool.Type),
				Function: &openai.FunctionDefinition{
					Name:        stringField(tool.Function, "name"),
					Description: stringField(tool.Function, "description"),
					Parameters:  tool.Function["parameters"],
				},
			})
		}
		req.Tools = openaiTools
	}
	if request.ToolChoice != nil {
		req.ToolChoice = request.ToolChoice
	}

	return req
}

// toMap 经JSON序列化转换为通用map，保持OpenAI线格式不变
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := sonic.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func nestedStringField(m map[string]interface{}, key, sub string) string {
	if inner, ok := m[key].(map[string]interface{}); ok {
		return stringField(inner, sub)
	}
	return ""
}
