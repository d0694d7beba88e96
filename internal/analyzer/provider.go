package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// CompletionRequest is a single LLM call: a system instruction, a user
// prompt, and an optional image to attach for multimodal providers.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	ImageURL     string
	ImageBytes   []byte
	MaxTokens    int
	Temperature  float64
}

// Provider dispatches a CompletionRequest to an LLM and returns its raw
// text response.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// OpenAIProvider dispatches completions via the OpenAI chat API.
type OpenAIProvider struct {
	client chatClient
	model  string
}

// NewOpenAIProvider builds a Provider. Returns an error if apiKey is empty —
// this is the analyzer's only fatal construction-time failure.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("analyzer: missing LLM API key")
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &liveChatClient{client: client}, model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			buildUserMessage(req.UserPrompt, req.ImageURL),
		},
	}

	completion, err := p.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("analyzer: empty completion response")
	}
	return completion.Choices[0].Message.Content, nil
}

// buildUserMessage attaches imageURL as a second content part when present,
// so a fetched image rides alongside the text prompt in one multimodal call.
func buildUserMessage(prompt, imageURL string) openai.ChatCompletionMessageParamUnion {
	if imageURL == "" {
		return openai.UserMessage(prompt)
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					{OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt}},
					{OfImageURL: &openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL},
					}},
				},
			},
		},
	}
}

type liveChatClient struct {
	client openai.Client
}

func (c *liveChatClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
