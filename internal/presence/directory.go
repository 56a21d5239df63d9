package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"artmarket_chat/internal/domain"
)

// Directory answers "is this user connected anywhere". The local directory
// only sees this process; the Redis directory spans every node.
type Directory interface {
	Online(ctx context.Context, userID, channelID string) error
	Offline(ctx context.Context, userID, channelID string) error
	// Refresh extends the liveness of a connected user's entry.
	Refresh(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// LocalDirectory reads straight from the in-process registry.
type LocalDirectory struct {
	registry *Registry
}

func NewLocalDirectory(r *Registry) *LocalDirectory {
	return &LocalDirectory{registry: r}
}

func (d *LocalDirectory) Online(context.Context, string, string) error  { return nil }
func (d *LocalDirectory) Offline(context.Context, string, string) error { return nil }
func (d *LocalDirectory) Refresh(context.Context, string) error         { return nil }

func (d *LocalDirectory) IsOnline(_ context.Context, userID string) (bool, error) {
	return d.registry.IsOnline(userID), nil
}

const (
	presenceKeyPrefix = "chat:presence:"

	// DefaultPresenceTTL outlives a few missed heartbeats.
	DefaultPresenceTTL = 2 * time.Minute
)

// BuildPresenceKey returns the Redis hash holding one field per live channel.
// Key: chat:presence:{userID}, field: {nodeID}:{channelID}
func BuildPresenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

// RedisDirectory stores presence in Redis so every node sees every user.
// A node that dies without cleaning up ages out after ttl.
type RedisDirectory struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
}

func NewRedisDirectory(client *redis.Client, nodeID string, ttl time.Duration) *RedisDirectory {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisDirectory{client: client, nodeID: nodeID, ttl: ttl}
}

func (d *RedisDirectory) field(channelID string) string {
	return d.nodeID + ":" + channelID
}

func (d *RedisDirectory) Online(ctx context.Context, userID, channelID string) error {
	key := BuildPresenceKey(userID)
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, d.field(channelID), time.Now().Unix())
		pipe.Expire(ctx, key, d.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence online %s: %w", userID, err)
	}
	return nil
}

func (d *RedisDirectory) Offline(ctx context.Context, userID, channelID string) error {
	if err := d.client.HDel(ctx, BuildPresenceKey(userID), d.field(channelID)).Err(); err != nil {
		return fmt.Errorf("presence offline %s: %w", userID, err)
	}
	return nil
}

func (d *RedisDirectory) Refresh(ctx context.Context, userID string) error {
	if err := d.client.Expire(ctx, BuildPresenceKey(userID), d.ttl).Err(); err != nil {
		return fmt.Errorf("presence refresh %s: %w", userID, err)
	}
	return nil
}

func (d *RedisDirectory) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := d.client.HLen(ctx, BuildPresenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup %s: %w: %w", userID, domain.ErrUnavailable, err)
	}
	return n > 0, nil
}
