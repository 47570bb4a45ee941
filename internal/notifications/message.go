package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one queued notification. Messages are written to the outbox in
// the same transaction as the state change that caused them.
type Message struct {
	ID        string
	Template  Template
	Recipient string
	Data      Payload
	// DedupKey, when set, suppresses a second message with the same key.
	DedupKey  string
	Attempts  int
	CreatedAt time.Time
}

// NewMessage builds a message for a known template.
func NewMessage(template Template, recipient string, data Payload) (Message, error) {
	if _, ok := templates[template]; !ok {
		return Message{}, fmt.Errorf("unknown notification template %q", template)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return Message{}, fmt.Errorf("notification %s: recipient is required", template)
	}
	if data == nil {
		data = Payload{}
	}
	return Message{
		ID:        uuid.NewString(),
		Template:  template,
		Recipient: recipient,
		Data:      data,
	}, nil
}

// MustMessage is NewMessage for templates known at compile time.
func MustMessage(template Template, recipient string, data Payload) Message {
	msg, err := NewMessage(template, recipient, data)
	if err != nil {
		panic(err)
	}
	return msg
}

// WithDedupKey returns a copy of msg carrying key.
func (m Message) WithDedupKey(key string) Message {
	m.DedupKey = strings.TrimSpace(key)
	return m
}
