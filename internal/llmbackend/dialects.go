package llmbackend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/kittclouds/recall/internal/config"
)

type openAIChatter struct {
	client *openai.Client
	model  string
}

func newOpenAIChatter(cfg *config.Config) (*openAIChatter, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.LLMAPIKey),
		option.WithHTTPClient(http.DefaultClient),
	}
	if cfg.LLMAPIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.LLMAPIBase))
	}
	client := openai.NewClient(opts...)
	return &openAIChatter{client: &client, model: cfg.LLMModel}, nil
}

func (o *openAIChatter) Chat(ctx context.Context, messages []Message, maxTokens int) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, err
	}
	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return Result{
		Text:             text,
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type anthropicChatter struct {
	client anthropic.Client
	model  string
}

func newAnthropicChatter(cfg *config.Config) (*anthropicChatter, error) {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.LLMAPIKey),
	}
	if cfg.LLMAPIBase != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimSuffix(cfg.LLMAPIBase, "/")))
	}
	model := cfg.LLMModel
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicChatter{client: anthropic.NewClient(opts...), model: model}, nil
}

func (a *anthropicChatter) Chat(ctx context.Context, messages []Message, maxTokens int) (Result, error) {
	var system string
	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system += m.Content + "\n"
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Result{
		Text:             sb.String(),
		Model:            a.model,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

type googleChatter struct {
	client *genai.Client
	model  string
}

func newGoogleChatter(cfg *config.Config) (*googleChatter, error) {
	ctx := context.Background()
	clientCfg := &genai.ClientConfig{APIKey: cfg.LLMAPIKey}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	model := cfg.LLMModel
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &googleChatter{client: client, model: model}, nil
}

func (g *googleChatter) Chat(ctx context.Context, messages []Message, maxTokens int) (Result, error) {
	var parts []*genai.Part
	for _, m := range messages {
		parts = append(parts, &genai.Part{Text: m.Content})
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: parts, Role: "user"},
	}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("genai generate: %w", err)
	}
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return Result{Text: sb.String(), Model: g.model}, nil
}
