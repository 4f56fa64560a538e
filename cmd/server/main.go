package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-live/internal/auth"
	"chat-live/internal/config"
	"chat-live/internal/database"
	"chat-live/internal/handlers"
	"chat-live/internal/registry"
	"chat-live/internal/services"
	"chat-live/internal/session"
	"chat-live/internal/websocket"
	"chat-live/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Console)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize live layer
	reg := registry.New()
	hub := websocket.NewHub(reg, cfg.Realtime.DeliveryTimeout, cfg.Realtime.FanoutWorkers)

	// Initialize services
	authService := auth.NewService(cfg)
	conversationService := services.NewConversationService(db, db, cfg.Realtime.HistoryDefaultSize, cfg.Realtime.HistoryMaxPageSize)

	deps := &session.Deps{
		Verifier:        authService,
		Accounts:        db,
		Store:           db,
		Registry:        reg,
		Hub:             hub,
		Conversations:   conversationService,
		Limiter:         session.NewSendLimiter(cfg.Realtime.SendRateLimit, cfg.Realtime.SendRateWindow),
		AuthTimeout:     cfg.Realtime.AuthTimeout,
		PresenceTimeout: cfg.Realtime.PresenceTimeout,
	}
	clientOpts := websocket.ClientOptions{
		PingPeriod: cfg.Realtime.PingPeriod,
		PongWait:   cfg.Realtime.PongWait,
		WriteWait:  cfg.Realtime.WriteWait,
		ReadLimit:  cfg.Realtime.ReadLimit,
		SendBuffer: cfg.Realtime.SendBuffer,
	}

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(ctx, authService, deps, clientOpts, cfg.Realtime.OperationTimeout)
	conversationHandlers := handlers.NewConversationHandlers(conversationService, authService, reg)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, wsHandlers, conversationHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
	logger.Info("Server stopped, %d connections open at exit", reg.Count())
}

func openDatabase(ctx context.Context, cfg *config.Config) (database.Database, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; messages are lost on restart")
		return database.NewMemoryDB(), nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return db, nil
}

func setupRoutes(mux *http.ServeMux, wsHandlers *handlers.WebSocketHandlers, conversationHandlers *handlers.ConversationHandlers) {
	// Conversation routes
	mux.HandleFunc("GET /conversations/{partnerID}/messages", conversationHandlers.GetHistory)
	mux.HandleFunc("GET /unread", conversationHandlers.GetUnread)
	mux.HandleFunc("GET /presence/{userID}", conversationHandlers.GetPresence)
	mux.HandleFunc("GET /healthz", conversationHandlers.Health)

	// WebSocket route
	mux.HandleFunc("GET /ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   GET  /conversations/{partnerID}/messages?page=&page_size=")
	logger.Info("   GET  /unread")
	logger.Info("   GET  /presence/{userID}")
	logger.Info("   GET  /healthz")
	logger.Info("   GET  /ws")
}
