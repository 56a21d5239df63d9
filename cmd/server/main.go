package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"artmarket_chat/internal/config"
	"artmarket_chat/internal/domain"
	"artmarket_chat/internal/events"
	"artmarket_chat/internal/httpserver"
	"artmarket_chat/internal/logging"
	"artmarket_chat/internal/presence"
	"artmarket_chat/internal/security"
	"artmarket_chat/internal/service"
	"artmarket_chat/internal/store/postgres"
	"artmarket_chat/internal/store/sqlite"
	"artmarket_chat/internal/ws"
)

// @title           Art Marketplace Chat API
// @version         1.0
// @description     Direct messaging between buyers and artists.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type repositories struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
}

func openStore(cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:         postgres.NewUserRepo(db),
			conversations: postgres.NewConversationRepo(db),
			messages:      postgres.NewMessageRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:         sqlite.NewUserRepo(db),
			conversations: sqlite.NewConversationRepo(db),
			messages:      sqlite.NewMessageRepo(db),
		}, nil
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())

	// Initialize database
	db, repos, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)

	// Presence and event fan-out
	registry := presence.NewRegistry()
	gateway := events.NewGateway(registry)

	var relay events.Relay
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("artmarket-chat-"+cfg.NodeID))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer nc.Close()
		natsRelay, err := events.NewNATSRelay(nc, cfg.NATSSubject, cfg.NodeID, gateway)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe relay")
		}
		relay = natsRelay
		gateway.UseRelay(relay)
	}

	var directory presence.Directory
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		directory = presence.NewRedisDirectory(rdb, cfg.NodeID, cfg.PresenceTTL)
	}
	hub := ws.NewHub(registry, directory)

	convSvc := service.NewConversationService(repos.conversations, repos.messages, repos.users, gateway, service.Options{
		StoreTimeout: cfg.StoreTimeout,
		PageLimit:    cfg.MessagePageLimit,
	})

	// Build HTTP router
	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Conversations: convSvc,
		Hub:           hub,
		Gateway:       gateway,
		Tokens:        tokenSvc,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", cfg.HTTPAddr()).
			Str("driver", cfg.DBDriver).
			Str("node_id", cfg.NodeID).
			Bool("relay", relay != nil).
			Bool("redis_presence", directory != nil).
			Msg("starting chat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Shutdown()
		if relay != nil {
			if err := relay.Close(); err != nil {
				log.Warn().Err(err).Msg("relay close")
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
}
