package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"model":   "gpt-test",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(body)
}

func TestClassifierRequestsJSONObject(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"title":"Payslip"}`)))
	}))
	defer server.Close()

	classifier := NewClassifier(New("secret", server.URL+"/v1", "gpt-test", nil))
	raw, err := classifier.Classify(context.Background(), domain.ClassificationRequest{
		FileName:    "payslip.pdf",
		TextExcerpt: "Net salary",
		SiblingIDs:  []string{"REC-2025-0100"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Payslip"}`, raw)

	format, _ := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages, _ := captured["messages"].([]any)
	require.Len(t, messages, 2)
	user, _ := messages[1].(map[string]any)
	assert.Contains(t, user["content"], "payslip.pdf")
	assert.Contains(t, user["content"], "REC-2025-0100")
}

func TestClassifierRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"title":"ok"}`)))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	raw, err := NewClassifier(New("k", server.URL+"/v1", "m", exec)).Classify(context.Background(), domain.ClassificationRequest{FileName: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, raw)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClassifierWrapsPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	_, err := NewClassifier(New("k", server.URL+"/v1", "m", nil)).Classify(context.Background(), domain.ClassificationRequest{FileName: "a"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrClassificationTransport))
	assert.False(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestGeneratorUsesAnswerPrompt(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("See REC-2025-0001.")))
	}))
	defer server.Close()

	answer, err := NewGenerator(New("k", server.URL+"/v1", "m", nil)).GenerateArchiveAnswer(context.Background(), "Where is the lease?", []domain.RetrievedRecord{{
		Summary: domain.RecordSummary{RecordID: "REC-2025-0001", Title: "Lease"},
		Excerpt: "monthly rent",
	}})
	require.NoError(t, err)
	assert.Equal(t, "See REC-2025-0001.", answer)
	messages, _ := captured["messages"].([]any)
	require.Len(t, messages, 1)
	content, _ := messages[0].(map[string]any)["content"].(string)
	assert.True(t, strings.Contains(content, "Where is the lease?") && strings.Contains(content, "monthly rent"))
}
