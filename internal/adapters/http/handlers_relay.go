package httpadapter

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// relayInbound accepts both a Telegram update and a plain {chatId, from, text} message.
type relayInbound struct {
	ChatID string `json:"chatId"`
	From   string `json:"from"`
	Text   string `json:"text"`

	Message *struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
	} `json:"message"`
}

func (in relayInbound) toDomain() (domain.RelayMessage, bool) {
	if m := in.Message; m != nil {
		msg := domain.RelayMessage{
			ChatID: strconv.FormatInt(m.Chat.ID, 10),
			Text:   m.Text,
		}
		if m.From != nil {
			msg.From = m.From.Username
			if msg.From == "" {
				msg.From = m.From.FirstName
			}
		}
		if m.Date > 0 {
			msg.ReceivedAt = time.Unix(m.Date, 0).UTC()
		}
		return msg, strings.TrimSpace(msg.Text) != ""
	}
	msg := domain.RelayMessage{ChatID: in.ChatID, From: in.From, Text: in.Text}
	return msg, strings.TrimSpace(msg.Text) != ""
}

func (rt *Router) relayWebhook(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Relay == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "relay is not configured"})
		return
	}
	if secret := rt.cfg.TelegramWebhookSecret; secret != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeError(w, errBadCredentials)
			return
		}
	}

	var in relayInbound
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	msg, ok := in.toDomain()
	if !ok {
		// Telegram retries non-2xx answers, so updates without text are acknowledged.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Relay.Receive(msg))
}

func (rt *Router) relayMessages(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Relay == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "relay is not configured"})
		return
	}
	items := rt.deps.Relay.Messages(r.URL.Query().Get("after"))
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (rt *Router) relaySend(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Relay == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "relay is not configured"})
		return
	}
	var req struct {
		ChatID string `json:"chatId"`
		Text   string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.deps.Relay.Send(r.Context(), req.ChatID, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
