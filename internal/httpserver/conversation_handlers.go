package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"artmarket_chat/internal/service"
)

type conversationCreateRequest struct {
	PeerID string `json:"peer_id"`
}

// @Summary      Start a conversation
// @Description  Find or create the conversation with another user without sending a message
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body conversationCreateRequest true "Peer"
// @Success      200  {object}  domain.ConversationSummary
// @Failure      400  {object}  errorResponse
// @Router       /conversations [post]
func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		currentUser := CurrentUser(r)
		conv, err := convSvc.StartConversation(r.Context(), currentUser.ID, req.PeerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      List conversations
// @Description  Conversations of the current user, most recent message first
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.ConversationSummary
// @Failure      503  {object}  errorResponse
// @Router       /conversations [get]
func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.ListConversations(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

// @Summary      Search conversations
// @Description  Conversations whose peer name or any message contains q
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        q   query     string  true  "Search text"
// @Success      200  {array}   domain.ConversationSummary
// @Failure      400  {object}  errorResponse
// @Router       /conversations/search [get]
func handleSearchConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.SearchGlobal(r.Context(), CurrentUser(r).ID, r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

// @Summary      Get conversation
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation ID"
// @Success      200  {object}  domain.ConversationSummary
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations/{conversationID} [get]
func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationID")
		conv, err := convSvc.GetConversation(r.Context(), id, CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Mark conversation read
// @Description  Marks every message received in the conversation as read
// @Tags         conversations
// @Security     BearerAuth
// @Param        conversationID  path  string  true  "Conversation ID"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations/{conversationID}/read [post]
func handleMarkConversationRead(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationID")
		if err := convSvc.MarkRead(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
