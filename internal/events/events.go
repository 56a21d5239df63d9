package events

import (
	"encoding/json"
	"time"

	"artmarket_chat/internal/domain"
)

// Event types pushed to channels.
const (
	TypeNewMessage   = "newMessage"
	TypeMessagesRead = "messagesRead"
	TypeUserTyping   = "userTyping"
	TypeError        = "error"
)

// Event is the envelope written to a channel. Every payload is safe to apply
// more than once.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessagesReadPayload carries absolute state: the reader's counter is zero
// and every message up to UpToSeq not sent by the reader is read.
type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	UnreadCount    int    `json:"unread_count"`
	UpToSeq        int64  `json:"up_to_seq"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func newMessagePayload(m *domain.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

// Encode marshals an event for the wire.
func Encode(typ string, payload any) ([]byte, error) {
	return json.Marshal(Event{Type: typ, Payload: payload})
}
