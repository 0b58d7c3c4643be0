package summary

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"topomap/internal/domain"
	"topomap/internal/errors"
)

// DefaultModel is used when no model is configured
const DefaultModel = "meta-llama/llama-3.3-70b-instruct"

// LLMGenerator asks an OpenAI-compatible chat completion endpoint to
// describe the nodes
type LLMGenerator struct {
	client *openai.Client
	model  string
}

// NewLLMGenerator creates a generator for the endpoint at baseURL. An empty
// baseURL uses the OpenAI API.
func NewLLMGenerator(apiKey, baseURL, model string) *LLMGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &LLMGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the configured model name
func (g *LLMGenerator) Model() string {
	return g.model
}

// Summarize sends one chat completion request
func (g *LLMGenerator) Summarize(ctx context.Context, nodes []domain.Node) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(nodes)},
		},
	})
	if err != nil {
		return "", errors.Wrap(errors.CodeSummary, "chat completion failed", err).WithOp("summarize")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.CodeSummary, "chat completion returned no choices").WithOp("summarize")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New(errors.CodeSummary, "chat completion returned empty content").WithOp("summarize")
	}
	return text, nil
}
