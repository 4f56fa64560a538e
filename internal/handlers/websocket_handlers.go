package handlers

import (
	"context"
	"net/http"
	"time"

	"chat-live/internal/auth"
	"chat-live/internal/models"
	"chat-live/internal/session"
	ws "chat-live/internal/websocket"
	"chat-live/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	ctx         context.Context
	authService *auth.Service
	deps        *session.Deps
	clientOpts  ws.ClientOptions
	opTimeout   time.Duration
	upgrader    websocket.Upgrader
}

// NewWebSocketHandlers serves live connections. ctx is the parent of every
// operation a connection runs.
func NewWebSocketHandlers(ctx context.Context, authService *auth.Service, deps *session.Deps, clientOpts ws.ClientOptions, opTimeout time.Duration) *WebSocketHandlers {
	return &WebSocketHandlers{
		ctx:         ctx,
		authService: authService,
		deps:        deps,
		clientOpts:  clientOpts,
		opTimeout:   opTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the request. A token in the query string is
// verified before the upgrade and authenticates the session at once;
// otherwise the client must send an authenticate frame within the
// handshake window.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr != "" {
		if _, err := h.authService.Verify(r.Context(), tokenStr); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.clientOpts)
	s := session.New(h.deps, client.ID(), client)
	dispatcher := session.NewDispatcher(h.ctx, s, client, h.opTimeout)

	go client.WritePump()

	if tokenStr != "" {
		dispatcher.Handle(&models.ClientFrame{Type: models.FrameAuthenticate, Token: tokenStr})
	}

	go client.ReadPump(dispatcher)
}
