package chat

import (
	"testing"
)

func violationFields(violations []FieldViolation) map[string]string {
	fields := make(map[string]string, len(violations))
	for _, v := range violations {
		fields[v.Field] = v.Code
	}
	return fields
}

func TestDecodeRequestValid(t *testing.T) {
	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`

	req, violations := DecodeRequest([]byte(body))
	if len(violations) != 0 {
		t.Fatalf("合法请求不应有违规: %+v", violations)
	}
	if req == nil {
		t.Fatal("请求为空")
	}
	if req.MaxTokens == nil {
		t.Error("默认值未填充")
	}
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	req, violations := DecodeRequest([]byte(`{not json`))
	if req != nil {
		t.Error("非法JSON不应返回请求")
	}
	if len(violations) != 1 || violations[0].Code != CodeJSONInvalid {
		t.Errorf("violations = %+v", violations)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	req := &ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: "robot"},
			{Role: RoleUser, Content: strPtr("ok")},
		},
		AgentConfig:  &AgentConfig{AgentType: "alien"},
		MemoryConfig: &MemoryConfig{},
		ToolChoice:   42.0,
	}

	violations := Validate(req)
	fields := violationFields(violations)

	expected := map[string]string{
		"model":                   CodeMissing,
		"messages.0.role":         CodeEnum,
		"messages.0.content":      CodeMissing,
		"agent_config.agent_type": CodeEnum,
		"memory_config.memory_type": CodeMissing,
		"tool_choice":             CodeTypeError,
	}
	for field, code := range expected {
		if got, ok := fields[field]; !ok {
			t.Errorf("缺少字段 %s 的违规, 实际: %+v", field, violations)
		} else if got != code {
			t.Errorf("字段 %s 的代码 = %s, 期望 %s", field, got, code)
		}
	}
	if len(violations) != len(expected) {
		t.Errorf("违规数 = %d, 期望 %d: %+v", len(violations), len(expected), violations)
	}
}

func TestValidateContentOptionalWithToolCalls(t *testing.T) {
	req := &ChatCompletionRequest{
		Model: "m",
		Messages: []ChatMessage{
			{Role: RoleAssistant, ToolCalls: []map[string]interface{}{{"id": "1"}}},
			{Role: RoleAssistant, FunctionCall: map[string]interface{}{"name": "f"}},
		},
	}

	if violations := Validate(req); len(violations) != 0 {
		t.Errorf("携带工具调用的消息不应要求 content: %+v", violations)
	}
}

func TestValidateTools(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: RoleUser, Content: strPtr("hi")}},
		Tools: []Tool{
			{Type: "plugin", Function: map[string]interface{}{"name": "f"}},
			{Type: "function"},
		},
	}

	fields := violationFields(Validate(req))
	if fields["tools.0.type"] != CodeEnum {
		t.Errorf("tools.0.type 未报枚举违规: %v", fields)
	}
	if fields["tools.1.function"] != CodeMissing {
		t.Errorf("tools.1.function 未报缺失违规: %v", fields)
	}
}

func TestValidateEnumOptional(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: RoleUser, Content: strPtr("hi")}},
		MemoryConfig: &MemoryConfig{
			MemoryType:      "episodic",
			RetentionPolicy: "forever",
		},
	}

	fields := violationFields(Validate(req))
	if fields["memory_config.retention_policy"] != CodeEnum {
		t.Errorf("retention_policy 未报枚举违规: %v", fields)
	}
	if _, ok := fields["memory_config.retrieval_strategy"]; ok {
		t.Error("可选枚举留空不应报违规")
	}
}

func TestValidateToolChoiceForms(t *testing.T) {
	base := func() *ChatCompletionRequest {
		return &ChatCompletionRequest{
			Model:    "m",
			Messages: []ChatMessage{{Role: RoleUser, Content: strPtr("hi")}},
		}
	}

	req := base()
	req.ToolChoice = "auto"
	if violations := Validate(req); len(violations) != 0 {
		t.Errorf("字符串 tool_choice 合法: %+v", violations)
	}

	req = base()
	req.ToolChoice = map[string]interface{}{"type": "function"}
	if violations := Validate(req); len(violations) != 0 {
		t.Errorf("对象 tool_choice 合法: %+v", violations)
	}
}
