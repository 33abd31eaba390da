package domain

import "time"

// RelayMessage is one inbound message buffered for polling clients.
type RelayMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	From       string    `json:"from,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt"`
}
