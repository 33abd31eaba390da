// Package telegram forwards relay messages to the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.telegram.org"

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(token, baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	call := func(callCtx context.Context) error {
		return c.post(callCtx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text})
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "telegram.send_message", call, classifyTelegramError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("telegram send", err, classifyTelegramError)
}

func (c *Client) post(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The error text contains the URL and with it the bot token.
		return fmt.Errorf("telegram %s request: %w", method, redact(err, c.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode >= 300 || !out.OK {
		return &HTTPStatusError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			Description: out.Description,
		}
	}
	return nil
}

type HTTPStatusError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *HTTPStatusError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s status: %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s status: %d: %s", e.Method, e.StatusCode, e.Description)
}

func classifyTelegramError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
