package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"artmarket_chat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// GetOrCreateDirect relies on the UNIQUE pair_key constraint: a losing
// concurrent insert becomes a no-op and both callers read the same row.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Conversation, bool, error) {
	pair := domain.SortedPair(userA, userB)
	key := domain.PairKey(userA, userB)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := toUnix(time.Now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, last_seq, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`, uuid.NewString(), key, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	created := n == 1

	conv, err := scanConversation(tx.QueryRowContext(ctx, conversationSelect+` WHERE pair_key = ?`, key))
	if err != nil {
		return nil, false, err
	}
	if created {
		for _, uid := range pair {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, unread_count, last_read_seq)
				VALUES (?, ?, 0, 0)
			`, conv.ID, uid); err != nil {
				return nil, false, fmt.Errorf("insert participant %s: %w", uid, err)
			}
		}
	}
	if err := loadParticipants(ctx, tx, conv); err != nil {
		return nil, false, err
	}
	if domain.SortedPair(conv.Participants[0], conv.Participants[1]) != pair {
		return nil, false, fmt.Errorf("pair key %q resolves to conversation %s of %v", key, conv.ID, conv.Participants)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit conversation: %w", err)
	}
	return conv, created, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx, conversationSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := loadParticipants(ctx, r.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, summarySelect+`
		WHERE me.user_id = ?
		`+summaryOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return scanSummaries(rows)
}

// SearchForUser matches the peer's name or any message content, case-insensitively.
func (r *ConversationRepo) SearchForUser(ctx context.Context, userID, query string) ([]*domain.ConversationSummary, error) {
	q := strings.ToLower(query)
	rows, err := r.db.QueryContext(ctx, summarySelect+`
		WHERE me.user_id = ?
		  AND (instr(unicode_lower(COALESCE(u.name, '')), ?) > 0
		       OR EXISTS (SELECT 1 FROM messages m
		                  WHERE m.conversation_id = c.id AND instr(unicode_lower(m.content), ?) > 0))
		`+summaryOrder, userID, q, q)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return scanSummaries(rows)
}

// ── helpers ──────────────────────────────────────────────────────────────────

const conversationSelect = `
	SELECT id, pair_key, last_seq, last_message_content, last_message_sender_id,
	       last_message_at, created_at, updated_at
	FROM conversations`

// Conversations without messages sort after every conversation that has one.
const summarySelect = `
	SELECT c.id, c.last_message_content, c.last_message_sender_id, c.last_message_at,
	       c.created_at, c.updated_at, me.unread_count,
	       peer.user_id, COALESCE(u.name, ''), COALESCE(u.avatar, '')
	FROM conversation_participants me
	JOIN conversations c ON c.id = me.conversation_id
	JOIN conversation_participants peer
	  ON peer.conversation_id = c.id AND peer.user_id <> me.user_id
	LEFT JOIN users u ON u.id = peer.user_id`

const summaryOrder = `ORDER BY c.last_message_at IS NULL, c.last_message_at DESC, c.created_at DESC, c.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c                   domain.Conversation
		pairKey             string
		lastContent, lastBy sql.NullString
		lastAt              sql.NullInt64
		createdAt, updated  int64
	)
	err := row.Scan(&c.ID, &pairKey, &c.LastSeq, &lastContent, &lastBy, &lastAt, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updated)
	if lastAt.Valid {
		c.LastMessage = &domain.LastMessage{
			Content:   lastContent.String,
			SenderID:  lastBy.String,
			Timestamp: fromUnix(lastAt.Int64),
		}
	}
	return &c, nil
}

func scanSummaries(rows *sql.Rows) ([]*domain.ConversationSummary, error) {
	defer rows.Close()
	res := []*domain.ConversationSummary{}
	for rows.Next() {
		var (
			s                   domain.ConversationSummary
			lastContent, lastBy sql.NullString
			lastAt              sql.NullInt64
			createdAt, updated  int64
		)
		if err := rows.Scan(
			&s.ID, &lastContent, &lastBy, &lastAt, &createdAt, &updated, &s.UnreadCount,
			&s.Peer.ID, &s.Peer.Name, &s.Peer.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		s.CreatedAt = fromUnix(createdAt)
		s.UpdatedAt = fromUnix(updated)
		if lastAt.Valid {
			s.LastMessage = &domain.LastMessage{
				Content:   lastContent.String,
				SenderID:  lastBy.String,
				Timestamp: fromUnix(lastAt.Int64),
			}
		}
		res = append(res, &s)
	}
	return res, rows.Err()
}
