package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"artmarket_chat/internal/domain"
	"artmarket_chat/internal/events"
	"artmarket_chat/internal/security"
	"artmarket_chat/internal/service"
)

// Client-originated event types.
const (
	inSendMessage = "sendMessage"
	inMarkRead    = "markRead"
	inTyping      = "typing"
)

type inboundEvent struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}
	if _, ok := allowed["*"]; ok {
		return func(r *http.Request) bool {
			return true
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// binds the connection to the principal, then dispatches client events:
//   - sendMessage -> persist, newMessage pushed to both participants
//   - markRead    -> mark all unread, messagesRead pushed to both participants
//   - typing      -> userTyping forwarded to the other participant
//
// Failures are reported as an error event on this connection only.
func MakeHandler(
	hub *Hub,
	gateway *events.Gateway,
	tokens *security.TokenService,
	convSvc *service.ConversationService,
	allowedOrigins []string,
	sendBuffer int,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		ctx := r.Context()
		if err := convSvc.RememberUser(ctx, user); err != nil {
			hub.logger.Warn().Err(err).Str("user_id", user.ID).Msg("remember user")
		}

		client := NewClient(conn, sendBuffer)
		hub.Register(ctx, user.ID, client)
		defer hub.Unregister(context.Background(), client)

		go client.writePump()
		client.readPump(
			func(data []byte) { dispatch(ctx, hub, gateway, convSvc, user, client, data) },
			func() { hub.Refresh(ctx, user.ID) },
		)
	}
}

func dispatch(
	ctx context.Context,
	hub *Hub,
	gateway *events.Gateway,
	convSvc *service.ConversationService,
	user *domain.User,
	client *Client,
	data []byte,
) {
	var in inboundEvent
	if err := json.Unmarshal(data, &in); err != nil {
		gateway.SendError(client, "", "malformed event")
		return
	}

	var err error
	switch in.Type {
	case inSendMessage:
		_, err = convSvc.SendMessage(ctx, user.ID, in.RecipientID, in.Content)

	case inMarkRead:
		err = convSvc.MarkRead(ctx, in.ConversationID, user.ID)

	case inTyping:
		var participants [2]string
		participants, err = convSvc.Participants(ctx, in.ConversationID, user.ID)
		if err == nil {
			gateway.Typing(in.ConversationID, user.ID, in.IsTyping, participants)
		}

	default:
		hub.logger.Debug().Str("type", in.Type).Str("user_id", user.ID).Msg("unknown event type")
		gateway.SendError(client, in.RequestID, fmt.Sprintf("unknown event type %q", in.Type))
		return
	}

	if err != nil {
		hub.logger.Info().Err(err).Str("type", in.Type).Str("user_id", user.ID).Msg("ws request failed")
		gateway.SendError(client, in.RequestID, domain.PublicMessage(err))
	}
}
