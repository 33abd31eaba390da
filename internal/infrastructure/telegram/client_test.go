package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

func TestSendMessagePostsToBotAPI(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New("secret", srv.URL, time.Second, nil)
	require.NoError(t, c.SendMessage(context.Background(), "42", "archive synced"))
	assert.Equal(t, sendMessageRequest{ChatID: "42", Text: "archive synced"}, got)
}

func TestSendMessageRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Too Many Requests"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
	})
	c := New("secret", srv.URL, time.Second, exec)
	require.NoError(t, c.SendMessage(context.Background(), "42", "hi"))
	assert.EqualValues(t, 2, calls.Load())
}

func TestSendMessageRejectedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := New("secret", srv.URL, time.Second, nil).SendMessage(context.Background(), "0", "hi")
	require.Error(t, err)
	assert.False(t, domain.IsKind(err, domain.ErrTemporary))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTransportErrorHidesToken(t *testing.T) {
	c := New("secret-token", "http://127.0.0.1:1", 200*time.Millisecond, nil)
	err := c.SendMessage(context.Background(), "42", "hi")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
	assert.NotContains(t, err.Error(), "secret-token")
}
