package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds an Ollama client. A nil executor sends every request once.
func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Classifier asks the model for ISO 15489 record metadata and returns the
// raw JSON text; validation happens in the classification gateway.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	respText, err := c.client.generateJSON(ctx, prompt.Classification(req))
	if err != nil {
		return "", domain.WrapError(domain.ErrClassificationTransport, "ollama classify", wrapTemporaryIfNeeded("ollama classify", err))
	}
	return respText, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateArchiveAnswer(ctx context.Context, question string, records []domain.RetrievedRecord) (string, error) {
	answer, err := g.client.generateText(ctx, prompt.Answer(question, records))
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama answer", err)
	}
	return answer, nil
}

func (c *Client) generateJSON(ctx context.Context, text string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": text,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, text string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": text,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
