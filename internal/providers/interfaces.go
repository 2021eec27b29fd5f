package providers

import "context"

type ChatRequest struct {
	Action       string   `json:"action"`
	ModelID      string   `json:"model_id"`
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	// Temperature nil means the model does not take a temperature parameter;
	// it is omitted from the request rather than defaulted.
	Temperature *float32 `json:"temperature,omitempty"`
}

type ChatResponse struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

type ChatProvider interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
