package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"chat-live/internal/auth"
	"chat-live/internal/errs"
	"chat-live/internal/models"
	"chat-live/internal/registry"
	"chat-live/internal/services"
	"chat-live/pkg/logger"
)

// ConversationHandlers serves the read endpoints used for backfill.
type ConversationHandlers struct {
	conversations *services.ConversationService
	authService   *auth.Service
	registry      *registry.Registry
}

func NewConversationHandlers(conversations *services.ConversationService, authService *auth.Service, reg *registry.Registry) *ConversationHandlers {
	return &ConversationHandlers{
		conversations: conversations,
		authService:   authService,
		registry:      reg,
	}
}

// GetHistory serves GET /conversations/{partnerID}/messages.
func (h *ConversationHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		http.Error(w, "invalid page_size", http.StatusBadRequest)
		return
	}

	history, err := h.conversations.History(r.Context(), user.UserID, models.UserID(r.PathValue("partnerID")), page, pageSize)
	if err != nil {
		writeError(w, "Get history", err)
		return
	}

	writeJSON(w, history)
}

// GetUnread serves GET /unread.
func (h *ConversationHandlers) GetUnread(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.conversations.UnreadCount(r.Context(), user.UserID)
	if err != nil {
		writeError(w, "Get unread", err)
		return
	}

	writeJSON(w, models.UnreadPayload{Unread: n})
}

// GetPresence serves GET /presence/{userID}.
func (h *ConversationHandlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	if _, err := h.getUserFromToken(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID := models.UserID(r.PathValue("userID"))
	status := models.PresenceOffline
	if h.registry.IsOnline(userID) {
		status = models.PresenceOnline
	}

	writeJSON(w, map[string]interface{}{
		"user_id":     userID,
		"status":      status,
		"connections": len(h.registry.ConnectionsFor(userID)),
	})
}

func (h *ConversationHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":      "ok",
		"connections": h.registry.Count(),
	})
}

func (h *ConversationHandlers) getUserFromToken(r *http.Request) (models.Identity, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenStr == "" {
		return models.Identity{}, fmt.Errorf("missing token")
	}

	return h.authService.Verify(r.Context(), tokenStr)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Encode response error: %v", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
	}
	http.Error(w, err.Error(), status)
}
