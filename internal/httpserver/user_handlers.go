package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"artmarket_chat/internal/ws"
)

type presenceResponse struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// @Summary      User presence
// @Description  Whether the user has at least one open channel on any node
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path  string  true  "User ID"
// @Success      200  {object}  presenceResponse
// @Failure      503  {object}  errorResponse
// @Router       /users/{userID}/presence [get]
func handleUserPresence(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		online, err := hub.IsOnline(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, presenceResponse{UserID: userID, Online: online})
	}
}
