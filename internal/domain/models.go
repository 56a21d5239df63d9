package domain

import (
	"strconv"
	"time"
)

// User is the profile of an authenticated principal. Identity is owned by
// the authentication subsystem; only id, name and avatar are kept here.
type User struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Avatar string `db:"avatar" json:"avatar,omitempty"`
}

// LastMessage is the denormalized summary of the newest message in a conversation.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a two-party thread.
type Conversation struct {
	ID           string         `db:"id" json:"id"`
	Participants [2]string      `db:"-" json:"participants"`
	LastSeq      int64          `db:"last_seq" json:"-"`
	LastMessage  *LastMessage   `db:"-" json:"last_message,omitempty"`
	UnreadCount  map[string]int `db:"-" json:"unread_count"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	ID          string       `json:"id"`
	Peer        User         `json:"peer"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Message represents a single chat message. Only IsRead ever changes after
// creation, and only from false to true.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Seq            int64     `db:"seq" json:"seq"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PairKey canonicalizes an unordered participant pair. The first id is
// length-prefixed so ids containing ':' cannot produce the same key for
// different pairs.
func PairKey(a, b string) string {
	p := SortedPair(a, b)
	return strconv.Itoa(len(p[0])) + ":" + p[0] + ":" + p[1]
}

// SortedPair returns the two ids in canonical order.
func SortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}
