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

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Append(ctx context.Context, m *domain.Message, recipientID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// created_at never goes below the previous message's timestamp so that
	// creation order and seq order agree even if the wall clock steps back.
	now := toUnix(time.Now())
	var createdAt int64
	err = tx.QueryRowContext(ctx, `
		UPDATE conversations
		SET last_seq               = last_seq + 1,
		    last_message_content   = ?,
		    last_message_sender_id = ?,
		    last_message_at        = MAX(?, COALESCE(last_message_at, 0)),
		    updated_at             = ?
		WHERE id = ?
		RETURNING last_seq, last_message_at
	`, m.Content, m.SenderID, now, now, m.ConversationID,
	).Scan(&m.Seq, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("advance conversation: %w", err)
	}

	m.ID = uuid.NewString()
	m.IsRead = false
	m.CreatedAt = fromUnix(createdAt)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, sender_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, m.ID, m.ConversationID, m.Seq, m.SenderID, m.Content, createdAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id = ?
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
	err = tx.QueryRowContext(ctx, `SELECT last_seq FROM conversations WHERE id = ?`, conversationID).Scan(&upTo)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read conversation seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0 AND seq <= ?
	`, conversationID, readerID, upTo); err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = 0, last_read_seq = MAX(last_read_seq, ?)
		WHERE conversation_id = ? AND user_id = ?
	`, upTo, conversationID, readerID)
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
		WHERE conversation_id = ? AND (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?
	`, conversationID, beforeSeq, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *MessageRepo) Search(ctx context.Context, conversationID, query string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+`
		WHERE conversation_id = ? AND instr(unicode_lower(content), ?) > 0
		ORDER BY seq DESC
		LIMIT ?
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
		var (
			m         domain.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Content, &m.IsRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromUnix(createdAt)
		res = append(res, &m)
	}
	return res, rows.Err()
}
