package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mealdex/apiserver/config"
	"github.com/mealdex/apiserver/internal/db"
	"github.com/mealdex/apiserver/internal/handlers"
	"github.com/mealdex/apiserver/internal/mq"
	"github.com/mealdex/apiserver/internal/services"
	"github.com/mealdex/apiserver/internal/storage"
	"github.com/mealdex/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     io.Closer
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	events, err := openEvents(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	mirror, err := openMirror(ctx, cfg, log)
	if err != nil {
		_ = events.Close()
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	favoriteRepo := store.NewFavoriteRepository(dbConn)

	userService := services.NewUserService(userRepo)
	favoriteService := services.NewFavoriteService(favoriteRepo, events, mirror, log)

	authHandler := handlers.NewAuthHandler(userService, jwtSecret)
	authMiddleware := authHandler.RequireAuth

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.With(authMiddleware).Get("/me", authHandler.Me)
	router.Route("/favorites", func(r chi.Router) {
		handlers.FavoriteRouter(r, favoriteService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
	}, nil
}

// openEvents builds the favorite-event publisher from config. Without a
// configured backend events are silently dropped.
func openEvents(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendRabbitMQ:
		backend, err := mq.NewRabbitMQClient(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case config.EventsBackendPubSub:
		backend, err := mq.NewPubSubClient(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "":
		return mq.New(mq.NewNoopBackend()), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// openMirror builds the image-mirror store from config. A nil result means
// mirroring is disabled. A bucket-setup failure is logged, not fatal.
func openMirror(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.Storage.Backend {
	case config.StorageBackendMinio:
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case config.StorageBackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	mirror := storage.NewStorage(backend)
	if err := mirror.EnsureBucket(ctx); err != nil {
		log.Warn("failed to ensure mirror bucket",
			slog.String("bucket", mirror.Bucket()),
			slog.Any("err", err),
		)
	}
	return mirror, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.events != nil {
		_ = s.events.Close()
	}
	return s.httpServer.Close()
}
