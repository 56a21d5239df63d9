package events

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"artmarket_chat/internal/domain"
	"artmarket_chat/internal/presence"
	"artmarket_chat/internal/service"
)

// Relay carries encoded events to the node(s) holding the recipients' channels.
type Relay interface {
	Publish(recipients []string, data []byte) error
	Close() error
}

// Gateway pushes committed mutations to every connected channel of the
// affected users. Delivery is best effort: users without channels get
// nothing and reconcile through the REST listing calls.
type Gateway struct {
	registry *presence.Registry
	relay    Relay
	logger   zerolog.Logger
}

var _ service.Notifier = (*Gateway)(nil)

func NewGateway(registry *presence.Registry) *Gateway {
	return &Gateway{
		registry: registry,
		logger:   log.With().Str("component", "gateway").Logger(),
	}
}

// UseRelay routes events through r instead of delivering in-process only.
// Must be called before the gateway is shared.
func (g *Gateway) UseRelay(r Relay) {
	g.relay = r
}

// NewMessage implements service.Notifier.
func (g *Gateway) NewMessage(msg *domain.Message, participants [2]string) {
	g.publish(participants[:], TypeNewMessage, newMessagePayload(msg))
}

// MessagesRead implements service.Notifier.
func (g *Gateway) MessagesRead(conversationID, readerID string, upToSeq int64, participants [2]string) {
	g.publish(participants[:], TypeMessagesRead, MessagesReadPayload{
		ConversationID: conversationID,
		ReaderID:       readerID,
		UnreadCount:    0,
		UpToSeq:        upToSeq,
	})
}

// Typing forwards an advisory typing indicator to everyone but the typist.
func (g *Gateway) Typing(conversationID, userID string, isTyping bool, participants [2]string) {
	others := make([]string, 0, 1)
	for _, p := range participants {
		if p != userID {
			others = append(others, p)
		}
	}
	g.publish(others, TypeUserTyping, TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
}

// SendError writes an error event to a single channel.
func (g *Gateway) SendError(ch presence.Channel, requestID, message string) {
	data, err := Encode(TypeError, ErrorPayload{Message: message, RequestID: requestID})
	if err != nil {
		g.logger.Error().Err(err).Msg("encode error event")
		return
	}
	if !ch.Send(data) {
		g.logger.Debug().Str("channel_id", ch.ID()).Msg("dropped error event")
	}
}

// Deliver writes data to every local channel of recipients and returns how
// many channels accepted it. Relays call this for events they receive.
func (g *Gateway) Deliver(recipients []string, data []byte) int {
	delivered := 0
	for _, uid := range recipients {
		for _, ch := range g.registry.ChannelsFor(uid) {
			if ch.Send(data) {
				delivered++
				continue
			}
			g.logger.Debug().
				Str("user_id", uid).
				Str("channel_id", ch.ID()).
				Msg("dropped event for slow or closed channel")
		}
	}
	return delivered
}

func (g *Gateway) publish(recipients []string, typ string, payload any) {
	if len(recipients) == 0 {
		return
	}
	data, err := Encode(typ, payload)
	if err != nil {
		g.logger.Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	if g.relay == nil {
		g.Deliver(recipients, data)
		return
	}
	if err := g.relay.Publish(recipients, data); err != nil {
		// Fall back to this node's channels; other nodes miss the event
		// and reconcile on their next refresh.
		g.logger.Warn().Err(err).Str("type", typ).Msg("relay publish failed, delivering locally")
		g.Deliver(recipients, data)
	}
}
