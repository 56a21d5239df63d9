package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"artmarket_chat/internal/domain"
)

const (
	maxContentRunes = 5000

	defaultStoreTimeout = 5 * time.Second
	defaultPageLimit    = 200
)

// Notifier receives committed mutations. Implementations must not block.
type Notifier interface {
	NewMessage(msg *domain.Message, participants [2]string)
	MessagesRead(conversationID, readerID string, upToSeq int64, participants [2]string)
}

type Options struct {
	// StoreTimeout bounds every repository call.
	StoreTimeout time.Duration
	// PageLimit caps message listings and searches.
	PageLimit int
}

// ConversationService owns every mutation of conversations and messages.
// Mutations on one conversation are serialized on an in-process lock keyed
// by conversation id; creation is serialized on the canonical pair key.
type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	notifier      Notifier

	locks  *keyedMutex
	opts   Options
	logger zerolog.Logger
}

func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	notifier Notifier,
	opts Options,
) *ConversationService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		notifier:      notifier,
		locks:         newKeyedMutex(),
		opts:          opts,
		logger:        log.With().Str("component", "service").Logger(),
	}
}

// RememberUser records the principal's display profile for conversation listings.
func (s *ConversationService) RememberUser(ctx context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("missing user id: %w", domain.ErrInvalidArgument)
	}
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	if err := s.users.Upsert(ctx, u); err != nil {
		return storeErr("remember user", err)
	}
	return nil
}

// FindOrCreate returns the single conversation between userA and userB.
func (s *ConversationService) FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("both participants are required: %w", domain.ErrInvalidArgument)
	}
	if userA == userB {
		return nil, fmt.Errorf("cannot start a conversation with yourself: %w", domain.ErrInvalidArgument)
	}

	unlock := s.locks.Lock("pair:" + domain.PairKey(userA, userB))
	defer unlock()

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	conv, created, err := s.conversations.GetOrCreateDirect(ctx, userA, userB)
	if err != nil {
		return nil, storeErr("find or create conversation", err)
	}
	if created {
		s.logger.Info().
			Str("conversation_id", conv.ID).
			Strs("participants", conv.Participants[:]).
			Msg("conversation created")
	}
	return conv, nil
}

// SendMessage appends a message from senderID to recipientID, creating the
// conversation on first contact. Participants are notified after commit.
func (s *ConversationService) SendMessage(ctx context.Context, senderID, recipientID, content string) (*domain.Message, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient is required: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content cannot be empty: %w", domain.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return nil, fmt.Errorf("message content exceeds %d characters: %w", maxContentRunes, domain.ErrInvalidArgument)
	}

	conv, err := s.FindOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("conv:" + conv.ID)
	defer unlock()

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
	}
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	if err := s.messages.Append(wctx, msg, recipientID); err != nil {
		return nil, storeErr("append message", err)
	}

	s.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Int64("seq", msg.Seq).
		Msg("message appended")

	// Still under the conversation lock so events leave in commit order.
	s.notifier.NewMessage(msg, conv.Participants)
	return msg, nil
}

// MarkRead marks every message readerID has received in the conversation as
// read and zeroes their unread counter.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, readerID string) error {
	conv, err := s.authorize(ctx, conversationID, readerID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock("conv:" + conv.ID)
	defer unlock()

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	upTo, err := s.messages.MarkAllRead(wctx, conv.ID, readerID)
	if err != nil {
		return storeErr("mark read", err)
	}

	s.notifier.MessagesRead(conv.ID, readerID, upTo, conv.Participants)
	return nil
}

// GetMessages returns up to limit messages, oldest first. beforeSeq > 0 pages
// backwards from that sequence number.
func (s *ConversationService) GetMessages(ctx context.Context, conversationID, requesterID string, limit int, beforeSeq int64) ([]*domain.Message, error) {
	if _, err := s.authorize(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.PageLimit {
		limit = s.opts.PageLimit
	}

	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	msgs, err := s.messages.ListForConversation(rctx, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, storeErr("list messages", err)
	}

	// Reverse to chronological order (store returns DESC)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SearchWithinConversation matches content case-insensitively, newest first.
func (s *ConversationService) SearchWithinConversation(ctx context.Context, conversationID, requesterID, query string) ([]*domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty: %w", domain.ErrInvalidArgument)
	}
	if _, err := s.authorize(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	msgs, err := s.messages.Search(rctx, conversationID, query, s.opts.PageLimit)
	if err != nil {
		return nil, storeErr("search messages", err)
	}
	return msgs, nil
}

// ListConversations returns the user's conversations, most recent message
// first. Conversations without messages come last, newest first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user id: %w", domain.ErrInvalidArgument)
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	convs, err := s.conversations.ListForUser(rctx, userID)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	return convs, nil
}

// SearchGlobal finds the user's conversations whose peer name or message
// content contains query, ordered like ListConversations.
func (s *ConversationService) SearchGlobal(ctx context.Context, userID, query string) ([]*domain.ConversationSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty: %w", domain.ErrInvalidArgument)
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	convs, err := s.conversations.SearchForUser(rctx, userID, query)
	if err != nil {
		return nil, storeErr("search conversations", err)
	}
	return convs, nil
}

// GetConversation returns the requester's view of one conversation.
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, requesterID string) (*domain.ConversationSummary, error) {
	conv, err := s.authorize(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, conv, requesterID), nil
}

// StartConversation finds or creates the conversation with peerID without
// sending anything.
func (s *ConversationService) StartConversation(ctx context.Context, userID, peerID string) (*domain.ConversationSummary, error) {
	conv, err := s.FindOrCreate(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, conv, userID), nil
}

// Participants returns both participant ids if requesterID is one of them.
func (s *ConversationService) Participants(ctx context.Context, conversationID, requesterID string) ([2]string, error) {
	conv, err := s.authorize(ctx, conversationID, requesterID)
	if err != nil {
		return [2]string{}, err
	}
	return conv.Participants, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *ConversationService) authorize(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("missing conversation id: %w", domain.ErrInvalidArgument)
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	conv, err := s.conversations.GetByID(rctx, conversationID)
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("not a participant in this conversation: %w", domain.ErrForbidden)
	}
	return conv, nil
}

func (s *ConversationService) summarize(ctx context.Context, conv *domain.Conversation, userID string) *domain.ConversationSummary {
	peerID := conv.Peer(userID)
	sum := &domain.ConversationSummary{
		ID:          conv.ID,
		Peer:        domain.User{ID: peerID},
		LastMessage: conv.LastMessage,
		UnreadCount: conv.UnreadCount[userID],
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	if u, err := s.users.GetByID(rctx, peerID); err == nil {
		sum.Peer = *u
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn().Err(err).Str("user_id", peerID).Msg("peer profile lookup failed")
	}
	return sum
}

// writeCtx detaches from the caller's cancellation: a client that goes away
// must not abort a mutation halfway. The store timeout still applies.
func (s *ConversationService) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
}

func (s *ConversationService) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// storeErr passes classified errors through and marks everything else Unavailable.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrInvalidArgument):
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}

type nopNotifier struct{}

func (nopNotifier) NewMessage(*domain.Message, [2]string)         {}
func (nopNotifier) MessagesRead(string, string, int64, [2]string) {}
