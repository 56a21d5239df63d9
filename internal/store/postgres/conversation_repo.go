package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

// GetOrCreateDirect inserts under the UNIQUE pair_key constraint. A racing
// insert blocks on the winner's commit, then does nothing and reads its row.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Conversation, bool, error) {
	pair := domain.SortedPair(userA, userB)
	key := domain.PairKey(userA, userB)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, last_seq, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (pair_key) DO NOTHING
	`, uuid.NewString(), key)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	created := n == 1

	conv, err := scanConversation(tx.QueryRowContext(ctx, conversationSelect+` WHERE pair_key = $1`, key))
	if err != nil {
		return nil, false, err
	}
	if created {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, unread_count, last_read_seq)
			VALUES ($1, $2, 0, 0), ($1, $3, 0, 0)
		`, conv.ID, pair[0], pair[1]); err != nil {
			return nil, false, fmt.Errorf("insert participants: %w", err)
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
	conv, err := scanConversation(r.db.QueryRowContext(ctx, conversationSelect+` WHERE id = $1`, id))
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
		WHERE me.user_id = $1
		`+summaryOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return scanSummaries(rows)
}

func (r *ConversationRepo) SearchForUser(ctx context.Context, userID, query string) ([]*domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, summarySelect+`
		WHERE me.user_id = $1
		  AND (strpos(lower(COALESCE(u.name, '') COLLATE "und-x-icu"), $2) > 0
		       OR EXISTS (SELECT 1 FROM messages m
		                  WHERE m.conversation_id = c.id AND strpos(lower(m.content COLLATE "und-x-icu"), $2) > 0))
		`+summaryOrder, userID, strings.ToLower(query))
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return scanSummaries(rows)
}

// ── helpers ──────────────────────────────────────────────────────────────────

const conversationSelect = `
	SELECT id, last_seq, last_message_content, last_message_sender_id,
	       last_message_at, created_at, updated_at
	FROM conversations`

const summarySelect = `
	SELECT c.id, c.last_message_content, c.last_message_sender_id, c.last_message_at,
	       c.created_at, c.updated_at, me.unread_count,
	       peer.user_id, COALESCE(u.name, ''), COALESCE(u.avatar, '')
	FROM conversation_participants me
	JOIN conversations c ON c.id = me.conversation_id
	JOIN conversation_participants peer
	  ON peer.conversation_id = c.id AND peer.user_id <> me.user_id
	LEFT JOIN users u ON u.id = peer.user_id`

const summaryOrder = `ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC, c.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c                   domain.Conversation
		lastContent, lastBy sql.NullString
		lastAt              sql.NullTime
	)
	err := row.Scan(&c.ID, &c.LastSeq, &lastContent, &lastBy, &lastAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if lastAt.Valid {
		c.LastMessage = &domain.LastMessage{
			Content:   lastContent.String,
			SenderID:  lastBy.String,
			Timestamp: lastAt.Time.UTC(),
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
			lastAt              sql.NullTime
		)
		if err := rows.Scan(
			&s.ID, &lastContent, &lastBy, &lastAt, &s.CreatedAt, &s.UpdatedAt, &s.UnreadCount,
			&s.Peer.ID, &s.Peer.Name, &s.Peer.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		if lastAt.Valid {
			s.LastMessage = &domain.LastMessage{
				Content:   lastContent.String,
				SenderID:  lastBy.String,
				Timestamp: lastAt.Time.UTC(),
			}
		}
		res = append(res, &s)
	}
	return res, rows.Err()
}
