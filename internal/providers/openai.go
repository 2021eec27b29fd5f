package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint and
// reports the provider-billed token counts.
type OpenAIProvider struct {
	keyName string
	client  *openai.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	cfg := openai.DefaultConfig(resolveOpenAIKey(keyName))
	if base := strings.TrimSpace(os.Getenv("ASSESSFLOW_OPENAI_BASE_URL")); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAIProvider{keyName: keyName, client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.ModelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("chat completion via %s: %w", req.ModelID, err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("model %s returned empty choices", req.ModelID)
	}
	return ChatResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("ASSESSFLOW_OPENAI_KEY_" + strings.ToUpper(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
