package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"artmarket_chat/internal/service"
)

type messageCreateRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// @Summary      Send a message
// @Description  Sends a message to recipient_id, creating the conversation on first contact
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body messageCreateRequest true "Message"
// @Success      201  {object}  domain.Message
// @Failure      400  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /messages [post]
func handleCreateMessage(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		msg, err := convSvc.SendMessage(r.Context(), CurrentUser(r).ID, req.RecipientID, req.Content)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// @Summary      List messages
// @Description  Messages of a conversation, oldest first. before pages backwards by sequence number.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path   string  true   "Conversation ID"
// @Param        limit           query  int     false  "Page size"
// @Param        before          query  int     false  "Only messages with a lower sequence number"
// @Success      200  {array}   domain.Message
// @Failure      403  {object}  errorResponse
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := queryInt(q.Get("limit"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		before, err := queryInt(q.Get("before"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid before"})
			return
		}

		id := chi.URLParam(r, "conversationID")
		msgs, err := convSvc.GetMessages(r.Context(), id, CurrentUser(r).ID, int(limit), before)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// @Summary      Search messages in a conversation
// @Description  Case-insensitive substring match on content, newest first
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID  path   string  true  "Conversation ID"
// @Param        q               query  string  true  "Search text"
// @Success      200  {array}   domain.Message
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /conversations/{conversationID}/messages/search [get]
func handleSearchMessages(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationID")
		msgs, err := convSvc.SearchWithinConversation(r.Context(), id, CurrentUser(r).ID, r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func queryInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
