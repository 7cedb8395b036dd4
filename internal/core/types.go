package core

import "encoding/json"

const (
	AppName       = "OppsBot"
	AppUserAgent  = "OppsBot-Agent/0.1"
	RepositoryURL = "https://github.com/sandevgo/oppsbot"
	AppVersion    = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool names. This is the fixed registry surface handed to the model.
const (
	ToolCreateOpportunity  = "create_opportunity"
	ToolUpdateOpportunity  = "update_opportunity"
	ToolQueryOpportunities = "query_opportunities"
	ToolCopyTemplate       = "copy_template"
)

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one session turn in the OpenAI chat wire shape: a user
// utterance, an assistant reply (optionally carrying tool calls), or a
// tool result tied back to its call by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}
