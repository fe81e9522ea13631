package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// FieldViolation 单个字段的校验违规
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// 校验违规代码
const (
	CodeMissing     = "missing"
	CodeEnum        = "enum"
	CodeTypeError   = "type_error"
	CodeJSONInvalid = "json_invalid"
)

var (
	validRoles = map[string]bool{
		RoleSystem:    true,
		RoleUser:      true,
		RoleAssistant: true,
		RoleFunction:  true,
		RoleTool:      true,
	}
	validAgentTypes     = map[string]bool{"medical": true, "general": true, "specialist": true}
	validReasoningModes = map[string]bool{"chain_of_thought": true, "tree_of_thought": true, "reflection": true}
	validMemoryTypes    = map[string]bool{"conversation": true, "episodic": true, "semantic": true, "working": true}
	validRetentions     = map[string]bool{"session": true, "persistent": true, "temporary": true}
	validRetrievals     = map[string]bool{"recent": true, "relevant": true, "hybrid": true}
)

func enumValues(set map[string]bool) string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return strings.Join(values, ", ")
}

// DecodeRequest 解析并校验请求体。返回的违规列表包含所有字段的全部问题，
// 而非遇到第一个错误就停止。列表为空表示请求合法且默认值已填充。
func DecodeRequest(body []byte) (*ChatCompletionRequest, []FieldViolation) {
	var req ChatCompletionRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, []FieldViolation{decodeViolation(err)}
	}

	violations := Validate(&req)
	if len(violations) > 0 {
		return nil, violations
	}

	req.ApplyDefaults()
	return &req, nil
}

func decodeViolation(err error) FieldViolation {
	var typeErr *json.UnmarshalTypeError
	if ok := asUnmarshalTypeError(err, &typeErr); ok {
		return FieldViolation{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("字段类型错误，期望 %s", typeErr.Type),
			Code:    CodeTypeError,
		}
	}
	return FieldViolation{
		Message: fmt.Sprintf("请求体不是合法的JSON: %v", err),
		Code:    CodeJSONInvalid,
	}
}

func asUnmarshalTypeError(err error, target **json.UnmarshalTypeError) bool {
	for err != nil {
		if typed, ok := err.(*json.UnmarshalTypeError); ok {
			*target = typed
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Validate 检查请求的结构约束，收集所有违规。数值范围不在本层钳制，
// 范围约束由完成服务负责。
func Validate(r *ChatCompletionRequest) []FieldViolation {
	var violations []FieldViolation

	if r.Model == "" {
		violations = append(violations, FieldViolation{
			Field:   "model",
			Message: "model 不能为空",
			Code:    CodeMissing,
		})
	}

	if len(r.Messages) == 0 {
		violations = append(violations, FieldViolation{
			Field:   "messages",
			Message: "messages 不能为空",
			Code:    CodeMissing,
		})
	}

	for i, msg := range r.Messages {
		violations = append(violations, validateMessage(i, msg)...)
	}

	for i, tool := range r.Tools {
		if tool.Type != "" && tool.Type != "function" {
			violations = append(violations, FieldViolation{
				Field:   fmt.Sprintf("tools.%d.type", i),
				Message: "工具类型仅支持 function",
				Code:    CodeEnum,
			})
		}
		if tool.Function == nil {
			violations = append(violations, FieldViolation{
				Field:   fmt.Sprintf("tools.%d.function", i),
				Message: "工具缺少函数定义",
				Code:    CodeMissing,
			})
		}
	}

	if r.AgentConfig != nil {
		violations = append(violations, validateEnum("agent_config.agent_type",
			r.AgentConfig.AgentType, validAgentTypes, true)...)
		violations = append(violations, validateEnum("agent_config.reasoning_mode",
			r.AgentConfig.ReasoningMode, validReasoningModes, false)...)
	}

	if r.MemoryConfig != nil {
		violations = append(violations, validateEnum("memory_config.memory_type",
			r.MemoryConfig.MemoryType, validMemoryTypes, true)...)
		violations = append(violations, validateEnum("memory_config.retention_policy",
			r.MemoryConfig.RetentionPolicy, validRetentions, false)...)
		violations = append(violations, validateEnum("memory_config.retrieval_strategy",
			r.MemoryConfig.RetrievalStrategy, validRetrievals, false)...)
	}

	if r.ToolChoice != nil {
		switch r.ToolChoice.(type) {
		case string, map[string]interface{}:
		default:
			violations = append(violations, FieldViolation{
				Field:   "tool_choice",
				Message: "tool_choice 必须是字符串或对象",
				Code:    CodeTypeError,
			})
		}
	}

	return violations
}

func validateMessage(index int, msg ChatMessage) []FieldViolation {
	var violations []FieldViolation

	if !validRoles[msg.Role] {
		violations = append(violations, FieldViolation{
			Field:   fmt.Sprintf("messages.%d.role", index),
			Message: fmt.Sprintf("role 必须是以下之一: %s", enumValues(validRoles)),
			Code:    CodeEnum,
		})
	}

	// content 仅当存在函数/工具调用时才允许缺省
	if msg.Content == nil && msg.FunctionCall == nil && len(msg.ToolCalls) == 0 {
		violations = append(violations, FieldViolation{
			Field:   fmt.Sprintf("messages.%d.content", index),
			Message: "消息缺少 content 且不包含函数/工具调用",
			Code:    CodeMissing,
		})
	}

	return violations
}

func validateEnum(field, value string, set map[string]bool, required bool) []FieldViolation {
	if value == "" {
		if !required {
			return nil
		}
		return []FieldViolation{{
			Field:   field,
			Message: field + " 不能为空",
			Code:    CodeMissing,
		}}
	}
	if !set[value] {
		return []FieldViolation{{
			Field:   field,
			Message: fmt.Sprintf("%s 必须是以下之一: %s", field, enumValues(set)),
			Code:    CodeEnum,
		}}
	}
	return nil
}
