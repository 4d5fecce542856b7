package domain

import "context"

// Role names used in completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider turns a prompt into reply text.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Name() string
}

type CompletionRequest struct {
	Messages    []PromptMessage
	Model       string
	MaxTokens   int
	Temperature float32
}

type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LastUserText returns the content of the newest user message.
func (r CompletionRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

type Completion struct {
	Content  string
	Provider string // name of the provider that produced Content
	Usage    Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
