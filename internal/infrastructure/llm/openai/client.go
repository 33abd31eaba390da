// Package openai adapts OpenAI-compatible chat completion APIs to the
// classifier and answer generator ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

type Client struct {
	api      *openai.Client
	model    string
	executor *resilience.Executor
}

// New builds a client. baseURL may point to any OpenAI-compatible provider.
func New(apiKey, baseURL, model string, executor *resilience.Executor) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		model:    model,
		executor: executor,
	}
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	content, err := c.client.complete(ctx, "openai.classify", openai.ChatCompletionRequest{
		Model: c.client.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.ClassificationInstructions()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.ClassificationInput(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.1,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrClassificationTransport, "openai classify", err)
	}
	return content, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateArchiveAnswer(ctx context.Context, question string, records []domain.RetrievedRecord) (string, error) {
	return g.client.complete(ctx, "openai.answer", openai.ChatCompletionRequest{
		Model: g.client.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt.Answer(question, records)},
		},
	})
}

func (c *Client) complete(ctx context.Context, operation string, req openai.ChatCompletionRequest) (string, error) {
	var content string
	call := func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("openai api error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices in response")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.WrapTemporary(operation, err, classifyOpenAIError)
	}
	return content, nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return resilience.ClassifyHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return resilience.ClassifyHTTPStatus(reqErr.HTTPStatusCode)
	}
	return resilience.Permanent
}
