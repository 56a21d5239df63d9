package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"artmarket_chat/internal/config"
	"artmarket_chat/internal/events"
	"artmarket_chat/internal/logging"
	"artmarket_chat/internal/security"
	"artmarket_chat/internal/service"
	"artmarket_chat/internal/ws"

	_ "artmarket_chat/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps are the long-lived components the router serves.
type Deps struct {
	Conversations *service.ConversationService
	Hub           *ws.Hub
	Gateway       *events.Gateway
	Tokens        *security.TokenService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
			"docs":    "/docs",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	convSvc := deps.Conversations

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(deps.Tokens, convSvc))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", handleListConversations(convSvc))
			r.Post("/", handleCreateConversation(convSvc))
			r.Get("/search", handleSearchConversations(convSvc))
			r.Get("/{conversationID}", handleGetConversation(convSvc))
			r.Post("/{conversationID}/read", handleMarkConversationRead(convSvc))
			r.Get("/{conversationID}/messages", handleListMessages(convSvc))
			r.Get("/{conversationID}/messages/search", handleSearchMessages(convSvc))
		})

		r.Post("/messages", handleCreateMessage(convSvc))

		r.Get("/users/{userID}/presence", handleUserPresence(deps.Hub))
	})

	// WebSocket endpoint; long-lived, so outside the request timeout.
	r.Get("/ws", ws.MakeHandler(deps.Hub, deps.Gateway, deps.Tokens, convSvc, cfg.CORSOrigins, cfg.ChannelBuffer))

	return r
}
