package domain

import (
	"context"
)

// UserRepository caches principal profiles for conversation listings.
type UserRepository interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// GetOrCreateDirect returns the conversation for the unordered pair,
	// inserting it when absent. created reports whether this call inserted it.
	GetOrCreateDirect(ctx context.Context, userA, userB string) (conv *Conversation, created bool, err error)
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*ConversationSummary, error)
	SearchForUser(ctx context.Context, userID, query string) ([]*ConversationSummary, error)
}

// MessageRepository defines persistence operations for messages. Append and
// MarkAllRead each run in one transaction together with the counter updates
// on the owning conversation.
type MessageRepository interface {
	// Append stores m, assigns its id, seq and timestamp, replaces the
	// conversation's last message and increments the recipient's unread counter.
	Append(ctx context.Context, m *Message, recipientID string) error
	// MarkAllRead flips every unread message not sent by readerID with
	// seq <= the conversation's sequence at transaction start, zeroes the
	// reader's counter and returns that sequence.
	MarkAllRead(ctx context.Context, conversationID, readerID string) (upToSeq int64, err error)
	ListForConversation(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*Message, error)
	Search(ctx context.Context, conversationID, query string, limit int) ([]*Message, error)
}
