package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"artmarket_chat/internal/presence"
)

const directoryTimeout = 2 * time.Second

// Hub ties channel lifecycle to the presence registry and directory.
type Hub struct {
	registry  *presence.Registry
	directory presence.Directory
	logger    zerolog.Logger
}

func NewHub(registry *presence.Registry, directory presence.Directory) *Hub {
	if directory == nil {
		directory = presence.NewLocalDirectory(registry)
	}
	return &Hub{
		registry:  registry,
		directory: directory,
		logger:    log.With().Str("component", "ws").Logger(),
	}
}

// Register binds a connected channel to its user.
func (h *Hub) Register(ctx context.Context, userID string, ch presence.Channel) {
	h.registry.Bind(userID, ch)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directoryTimeout)
	defer cancel()
	if err := h.directory.Online(dctx, userID, ch.ID()); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("presence online")
	}
	h.logger.Debug().Str("user_id", userID).Str("channel_id", ch.ID()).Msg("channel bound")
}

// Unregister unbinds a channel immediately on disconnect.
func (h *Hub) Unregister(ctx context.Context, ch presence.Channel) {
	userID, _, ok := h.registry.Unbind(ch)
	ch.Close()
	if !ok {
		return
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directoryTimeout)
	defer cancel()
	if err := h.directory.Offline(dctx, userID, ch.ID()); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("presence offline")
	}
	h.logger.Debug().Str("user_id", userID).Str("channel_id", ch.ID()).Msg("channel unbound")
}

// Refresh keeps a connected user's directory entry alive.
func (h *Hub) Refresh(ctx context.Context, userID string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directoryTimeout)
	defer cancel()
	if err := h.directory.Refresh(dctx, userID); err != nil {
		h.logger.Debug().Err(err).Str("user_id", userID).Msg("presence refresh")
	}
}

// IsOnline answers through the directory.
func (h *Hub) IsOnline(ctx context.Context, userID string) (bool, error) {
	return h.directory.IsOnline(ctx, userID)
}

// Shutdown closes every channel.
func (h *Hub) Shutdown() {
	h.registry.CloseAll()
}
