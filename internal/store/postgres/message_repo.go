package postgres

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

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Append takes the conversation row lock with its first statement; a
// concurrent MarkAllRead on the same conversation waits for the commit.
func (r *MessageRepo) Append(ctx context.Context, m *domain.Message, recipientID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
		UPDATE conversations
		SET last_seq               = last_seq + 1,
		    last_message_content   = $1,
		    last_message_sender_id = $2,
		    last_message_at        = GREATEST($3::timestamptz, COALESCE(last_message_at, $3::timestamptz)),
		    updated_at             = $3
		WHERE id = $4
		RETURNING last_seq, last_message_at
	`, m.Content, m.SenderID, now, m.ConversationID).Scan(&m.Seq, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("advance conversation: %w", err)
	}

	m.ID = uuid.NewString()
	m.IsRead = false
	m.CreatedAt = m.CreatedAt.UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, sender_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, m.ID, m.ConversationID, m.Seq, m.SenderID, m.Content, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id = $2
	`, m.ConversationID, recipientID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n != 1 {
		return fmt.Errorf("recipient %s is not in conversation %s: %w", recipientID, m.ConversationID, domain.ErrInvalidArgument)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var upTo int64
	err = tx.QueryRowContext(ctx, `
		SELECT last_seq FROM conversations WHERE id = $1 FOR UPDATE
	`, conversationID).Scan(&upTo)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE AND seq <= $3
	`, conversationID, readerID, upTo); err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = 0, last_read_seq = GREATEST(last_read_seq, $3)
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, readerID, upTo)
	if err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	} else if n != 1 {
		return 0, domain.ErrForbidden
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit read: %w", err)
	}
	return upTo, nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+`
		WHERE conversation_id = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3
	`, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *MessageRepo) Search(ctx context.Context, conversationID, query string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+`
		WHERE conversation_id = $1 AND strpos(lower(content COLLATE "und-x-icu"), $2) > 0
		ORDER BY seq DESC
		LIMIT $3
	`, conversationID, strings.ToLower(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return scanMessages(rows)
}

// ── helpers ──────────────────────────────────────────────────────────────────

const messageSelect = `
	SELECT id, conversation_id, seq, sender_id, content, is_read, created_at
	FROM messages`

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	res := []*domain.Message{}
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		res = append(res, m)
	}
	return res, rows.Err()
}
