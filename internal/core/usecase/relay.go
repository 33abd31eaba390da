package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const DefaultRelayCapacity = 50

// RelayMailbox keeps the most recent inbound messages and forwards outbound
// ones through the configured sender.
type RelayMailbox struct {
	mu       sync.Mutex
	messages []domain.RelayMessage
	capacity int
	sender   ports.MessageSender
}

func NewRelayMailbox(capacity int, sender ports.MessageSender) *RelayMailbox {
	if capacity <= 0 {
		capacity = DefaultRelayCapacity
	}
	return &RelayMailbox{capacity: capacity, sender: sender}
}

func (m *RelayMailbox) Receive(msg domain.RelayMessage) domain.RelayMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if over := len(m.messages) - m.capacity; over > 0 {
		m.messages = append([]domain.RelayMessage(nil), m.messages[over:]...)
	}
	return msg
}

// Messages returns buffered messages received after afterID, oldest first.
// An unknown or empty afterID returns the whole buffer.
func (m *RelayMailbox) Messages(afterID string) []domain.RelayMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if afterID != "" {
		for i, msg := range m.messages {
			if msg.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	out := make([]domain.RelayMessage, len(m.messages)-start)
	copy(out, m.messages[start:])
	return out
}

func (m *RelayMailbox) Send(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(text) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "relay send", errors.New("chat id and text are required"))
	}
	if m.sender == nil {
		return domain.WrapError(domain.ErrUnsupportedCapability, "relay send", errors.New("no message sender configured"))
	}
	return m.sender.SendMessage(ctx, chatID, text)
}
