package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"artmarket_chat/internal/domain"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadParticipants fills Participants and UnreadCount from conversation_participants.
func loadParticipants(ctx context.Context, q querier, c *domain.Conversation) error {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, unread_count FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY user_id COLLATE "C" ASC
	`, c.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	c.UnreadCount = make(map[string]int, 2)
	i := 0
	for rows.Next() {
		var (
			uid    string
			unread int
		)
		if err := rows.Scan(&uid, &unread); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if i < len(c.Participants) {
			c.Participants[i] = uid
		}
		c.UnreadCount[uid] = unread
		i++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if i != len(c.Participants) {
		return fmt.Errorf("conversation %s has %d participants", c.ID, i)
	}
	return nil
}
