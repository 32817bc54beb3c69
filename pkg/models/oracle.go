// Package models contains shared data models used across the hyroxreport codebase.
package models

import "context"

// Oracle is the chat-completion service every section and the improvement
// estimator talk to. Never call a concrete client directly; always inject
// this interface.
type Oracle interface {
	// Chat sends one non-streaming completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider identifier (e.g., "openai", "dashscope").
	Name() string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool declares a function the model may (or must) call.
type Tool struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable function; Parameters is a JSON Schema object.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice forces a specific function when Function is set.
type ToolChoice struct {
	Type     string              `json:"type"`
	Function *ToolChoiceFunction `json:"function,omitempty"`
}

type ToolChoiceFunction struct {
	Name string `json:"name"`
}

// ForceFunction returns a ToolChoice requiring a call to name.
func ForceFunction(name string) *ToolChoice {
	return &ToolChoice{Type: "function", Function: &ToolChoiceFunction{Name: name}}
}

// ChatRequest is the input to Oracle.Chat.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Tools          []Tool
	ToolChoice     *ToolChoice
	MaxTokens      int
	Temperature    float64
	EnableThinking bool
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
}

// ToolCall is a function invocation returned by the model. Arguments is the
// raw JSON string and may be wrapped in a fenced code block.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}
