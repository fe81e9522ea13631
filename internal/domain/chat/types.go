package chat

import (
	"encoding/json"
	"fmt"
)

// 消息角色，OpenAI标准枚举
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
	RoleTool      = "tool"
)

// 响应对象类型
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// 生成参数默认值
const (
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.7
	DefaultTopP          = 1.0
	DefaultN             = 1
	DefaultMaxIterations = 3
	DefaultMemorySize    = 100
	DefaultContextWindow = 4096
)

// ChatMessage OpenAI标准消息格式
type ChatMessage struct {
	Role         string                   `json:"role"`
	Content      *string                  `json:"content,omitempty"`
	Name         string                   `json:"name,omitempty"`
	FunctionCall map[string]interface{}   `json:"function_call,omitempty"`
	ToolCalls    []map[string]interface{} `json:"tool_calls,omitempty"`
	ToolCallID   string                   `json:"tool_call_id,omitempty"`
}

// Tool 工具定义：类型标签 + JSON-schema 形式的函数描述
type Tool struct {
	Type     string                 `json:"type"`
	Function map[string]interface{} `json:"function"`
}

// AgentConfig Agent配置，原样透传给完成服务，本层不解释
type AgentConfig struct {
	AgentType      string   `json:"agent_type"`
	Specialization string   `json:"specialization,omitempty"`
	Personality    string   `json:"personality,omitempty"`
	Guidelines     []string `json:"guidelines,omitempty"`
	ToolsEnabled   []string `json:"tools_enabled,omitempty"`
	MaxIterations  *int     `json:"max_iterations,omitempty"`
	ReasoningMode  string   `json:"reasoning_mode,omitempty"`
}

// MemoryConfig 记忆配置
type MemoryConfig struct {
	MemoryType         string `json:"memory_type"`
	RetentionPolicy    string `json:"retention_policy,omitempty"`
	MaxMemorySize      *int   `json:"max_memory_size,omitempty"`
	CompressionEnabled *bool  `json:"compression_enabled,omitempty"`
	RetrievalStrategy  string `json:"retrieval_strategy,omitempty"`
}

// MCPConfig 模型上下文协议配置
type MCPConfig struct {
	ContextWindowSize  int      `json:"context_window_size"`
	ContextCompression *bool    `json:"context_compression,omitempty"`
	RelevanceThreshold *float64 `json:"relevance_threshold,omitempty"`
	ContextSources     []string `json:"context_sources"`
	DynamicContext     *bool    `json:"dynamic_context,omitempty"`
}

// StopSequences 停止词，兼容单个字符串或字符串数组两种写法，
// 序列化时保持原始形态。
type StopSequences struct {
	Values []string
	single bool
}

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		s.Values = []string{one}
		s.single = true
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop 必须是字符串或字符串数组")
	}
	s.Values = many
	s.single = false
	return nil
}

func (s StopSequences) MarshalJSON() ([]byte, error) {
	if s.single && len(s.Values) == 1 {
		return json.Marshal(s.Values[0])
	}
	return json.Marshal(s.Values)
}

// ChatCompletionRequest 聊天完成请求，兼容OpenAI格式并携带平台扩展字段。
// 指针字段区分"缺省"与"显式零值"，缺省值在 ApplyDefaults 中填充。
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	MaxTokens        *int               `json:"max_tokens,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	N                *int               `json:"n,omitempty"`
	Stream           bool               `json:"stream"`
	Stop             *StopSequences     `json:"stop,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// 平台扩展字段
	AgentConfig  *AgentConfig  `json:"agent_config,omitempty"`
	MemoryConfig *MemoryConfig `json:"memory_config,omitempty"`
	MCPConfig    *MCPConfig    `json:"mcp_config,omitempty"`
	ContextID    string        `json:"context_id,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`

	// 患者上下文
	PatientID             *uint `json:"patient_id,omitempty"`
	IncludePatientContext bool  `json:"include_patient_context"`

	// 工具调用元数据，如case_type等
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ApplyDefaults 填充文档化的默认值。只补缺省字段，不覆盖显式零值。
func (r *ChatCompletionRequest) ApplyDefaults() {
	if r.MaxTokens == nil {
		r.MaxTokens = intPtr(DefaultMaxTokens)
	}
	if r.Temperature == nil {
		r.Temperature = floatPtr(DefaultTemperature)
	}
	if r.TopP == nil {
		r.TopP = floatPtr(DefaultTopP)
	}
	if r.N == nil {
		r.N = intPtr(DefaultN)
	}
	if r.PresencePenalty == nil {
		r.PresencePenalty = floatPtr(0)
	}
	if r.FrequencyPenalty == nil {
		r.FrequencyPenalty = floatPtr(0)
	}
	for i := range r.Tools {
		if r.Tools[i].Type == "" {
			r.Tools[i].Type = "function"
		}
	}
	if r.AgentConfig != nil {
		if r.AgentConfig.MaxIterations == nil {
			r.AgentConfig.MaxIterations = intPtr(DefaultMaxIterations)
		}
		if r.AgentConfig.ReasoningMode == "" {
			r.AgentConfig.ReasoningMode = "chain_of_thought"
		}
	}
	if r.MemoryConfig != nil {
		if r.MemoryConfig.RetentionPolicy == "" {
			r.MemoryConfig.RetentionPolicy = "session"
		}
		if r.MemoryConfig.MaxMemorySize == nil {
			r.MemoryConfig.MaxMemorySize = intPtr(DefaultMemorySize)
		}
		if r.MemoryConfig.CompressionEnabled == nil {
			r.MemoryConfig.CompressionEnabled = boolPtr(true)
		}
		if r.MemoryConfig.RetrievalStrategy == "" {
			r.MemoryConfig.RetrievalStrategy = "hybrid"
		}
	}
	if r.MCPConfig != nil {
		if r.MCPConfig.ContextWindowSize == 0 {
			r.MCPConfig.ContextWindowSize = DefaultContextWindow
		}
		if r.MCPConfig.ContextCompression == nil {
			r.MCPConfig.ContextCompression = boolPtr(true)
		}
		if r.MCPConfig.RelevanceThreshold == nil {
			r.MCPConfig.RelevanceThreshold = floatPtr(0.7)
		}
		if r.MCPConfig.ContextSources == nil {
			r.MCPConfig.ContextSources = []string{}
		}
		if r.MCPConfig.DynamicContext == nil {
			r.MCPConfig.DynamicContext = boolPtr(true)
		}
	}
}

// ChatCompletionResponse 聊天完成响应
type ChatCompletionResponse struct {
	ID      string                   `json:"id"`
	Object  string                   `json:"object"`
	Created int64                    `json:"created"`
	Model   string                   `json:"model"`
	Choices []map[string]interface{} `json:"choices"`
	Usage   map[string]int           `json:"usage,omitempty"`

	// 平台扩展字段
	AgentInfo         map[string]interface{} `json:"agent_info,omitempty"`
	MemoryInfo        map[string]interface{} `json:"memory_info,omitempty"`
	ToolExecutionInfo map[string]interface{} `json:"tool_execution_info,omitempty"`
}

// 流式事件类型
const (
	StreamEventMessage = "message"
	StreamEventDone    = "done"
)

// StreamEvent 完成服务产生的流式事件。Type 为 message 时 Data 携带可序列化的增量负载，
// Type 为 done 时 Data 为空且流终止。
type StreamEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

func intPtr(v int) *int             { return &v }
func floatPtr(v float64) *float64   { return &v }
func boolPtr(v bool) *bool          { return &v }
func strPtr(v string) *string       { return &v }
