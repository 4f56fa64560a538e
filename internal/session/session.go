// Package session implements the per-connection conversation state machine:
// Connecting, then Authenticated, then Closed. Durable work (send, markRead)
// completes before anything is published; publishing never fails a call.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-live/internal/database"
	"chat-live/internal/errs"
	"chat-live/internal/models"
	"chat-live/internal/registry"
	"chat-live/internal/rooms"
	"chat-live/internal/services"
	"chat-live/internal/websocket"
	"chat-live/pkg/logger"

	"github.com/rs/zerolog"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Verifier resolves a bearer credential to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Deps are shared by every session of the process.
type Deps struct {
	Verifier      Verifier
	Accounts      database.AccountDirectory
	Store         database.MessageStore
	Registry      *registry.Registry
	Hub           *websocket.Hub
	Conversations *services.ConversationService
	Limiter       *SendLimiter

	// AuthTimeout closes a connection that has not authenticated in time.
	// Zero disables the timer.
	AuthTimeout time.Duration
	// PresenceTimeout bounds the partner lookup of a presence broadcast.
	PresenceTimeout time.Duration
}

var errNotAuthenticated = fmt.Errorf("%w: not authenticated", errs.ErrAuthorization)

type Session struct {
	deps *Deps
	id   registry.ConnID
	conn registry.Conn
	log  zerolog.Logger

	mu       sync.Mutex
	state    State
	identity models.Identity
	info     *models.DisplayInfo
	timer    *time.Timer
}

func New(deps *Deps, id registry.ConnID, conn registry.Conn) *Session {
	s := &Session{
		deps: deps,
		id:   id,
		conn: conn,
		log:  logger.Module("session").With().Str("conn", string(id)).Logger(),
	}
	if deps.AuthTimeout > 0 {
		s.timer = time.AfterFunc(deps.AuthTimeout, s.expireHandshake)
	}
	return s
}

func (s *Session) ID() registry.ConnID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity is zero until the session is authenticated.
func (s *Session) Identity() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Authenticate verifies token, registers the connection and joins the
// user's personal room. Any failure closes the session; the caller reports
// the error and then calls Close to terminate the transport.
func (s *Session) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	s.mu.Lock()
	switch s.state {
	case StateAuthenticated:
		s.mu.Unlock()
		return models.Identity{}, fmt.Errorf("%w: already authenticated", errs.ErrInvalidRequest)
	case StateClosed:
		s.mu.Unlock()
		return models.Identity{}, errNotAuthenticated
	}

	identity, err := s.deps.Verifier.Verify(ctx, token)
	if err != nil {
		s.failHandshake()
		s.mu.Unlock()
		if !errors.Is(err, errs.ErrAuthentication) {
			err = fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
		}
		return models.Identity{}, err
	}

	first, err := s.deps.Registry.Register(s.id, identity, s.conn)
	if err != nil {
		s.failHandshake()
		s.mu.Unlock()
		return models.Identity{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}
	if err := s.deps.Registry.AddToRoom(s.id, rooms.ForUser(identity.UserID)); err != nil {
		s.deps.Registry.Unregister(s.id)
		s.failHandshake()
		s.mu.Unlock()
		return models.Identity{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateAuthenticated
	s.identity = identity
	s.log = s.log.With().Str("user", string(identity.UserID)).Logger()
	s.mu.Unlock()

	// Cached for badge notifications; a missing profile is not fatal.
	if info, err := s.deps.Accounts.UserDisplayInfo(ctx, identity.UserID); err == nil {
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()
	} else {
		s.log.Warn().Err(err).Msg("display info unavailable")
	}

	s.log.Info().Bool("first", first).Msg("authenticated")
	if first {
		s.broadcastPresence(ctx, identity.UserID, models.PresenceOnline, nil)
	}
	return identity, nil
}

// failHandshake must be called with s.mu held.
func (s *Session) failHandshake() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateClosed
}

func (s *Session) expireHandshake() {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.log.Info().Msg("authentication timed out")
	err := fmt.Errorf("%w: no credential received in time", errs.ErrAuthentication)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.conn.Send(ctx, ErrorFrame("", err))
	s.conn.Close()
}

// self returns the bound identity or an authorization error.
func (s *Session) self() (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return models.Identity{}, errNotAuthenticated
	}
	return s.identity, nil
}

func partnerOf(self models.UserID, partnerID models.UserID) (models.UserID, error) {
	partnerID = models.UserID(strings.TrimSpace(string(partnerID)))
	if partnerID == "" {
		return "", fmt.Errorf("%w: partner is required", errs.ErrInvalidRequest)
	}
	if partnerID == self {
		return "", fmt.Errorf("%w: cannot converse with yourself", errs.ErrInvalidRequest)
	}
	return partnerID, nil
}

// Join subscribes this connection to the conversation with partnerID.
func (s *Session) Join(partnerID models.UserID) error {
	me, err := s.self()
	if err != nil {
		return err
	}
	partner, err := partnerOf(me.UserID, partnerID)
	if err != nil {
		return err
	}
	if err := s.deps.Registry.AddToRoom(s.id, rooms.ForPair(me.UserID, partner)); err != nil {
		return errNotAuthenticated
	}
	return nil
}

func (s *Session) Leave(partnerID models.UserID) error {
	me, err := s.self()
	if err != nil {
		return err
	}
	partner, err := partnerOf(me.UserID, partnerID)
	if err != nil {
		return err
	}
	if err := s.deps.Registry.RemoveFromRoom(s.id, rooms.ForPair(me.UserID, partner)); err != nil {
		return errNotAuthenticated
	}
	return nil
}

// Send stores the message and then publishes it to the conversation room
// and a notification to the receiver's personal room. The stored message is
// returned whether or not anyone was live to receive it.
func (s *Session) Send(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	me, err := s.self()
	if err != nil {
		return nil, err
	}

	draft.SenderID = me.UserID
	if err := draft.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	if _, err := partnerOf(me.UserID, draft.ReceiverID); err != nil {
		return nil, err
	}

	exists, err := s.deps.Accounts.UserExists(ctx, draft.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, draft.ReceiverID)
	}

	if !s.deps.Limiter.Allow(me.UserID) {
		return nil, fmt.Errorf("%w: too many messages", errs.ErrRateLimited)
	}

	msg, err := s.deps.Store.AppendMessage(ctx, draft)
	if err != nil {
		s.log.Error().Err(err).Str("receiver", string(draft.ReceiverID)).Msg("append message")
		return nil, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}

	s.deps.Hub.Publish(ctx, models.NewMessageEvent{Message: msg}, rooms.ForPair(me.UserID, msg.ReceiverID))

	s.mu.Lock()
	info := s.info
	s.mu.Unlock()
	s.deps.Hub.Publish(ctx, models.MessageNotificationEvent{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderInfo: info,
		Preview:    msg.Preview(),
		Kind:       msg.Kind,
		CreatedAt:  msg.CreatedAt,
	}, rooms.ForUser(msg.ReceiverID))

	return msg, nil
}

func (s *Session) TypingStart(ctx context.Context, partnerID models.UserID) error {
	return s.typing(ctx, partnerID, true)
}

func (s *Session) TypingStop(ctx context.Context, partnerID models.UserID) error {
	return s.typing(ctx, partnerID, false)
}

func (s *Session) typing(ctx context.Context, partnerID models.UserID, on bool) error {
	me, err := s.self()
	if err != nil {
		return err
	}
	partner, err := partnerOf(me.UserID, partnerID)
	if err != nil {
		return err
	}
	s.deps.Hub.PublishExcept(ctx, s.id, models.UserTypingEvent{UserID: me.UserID, IsTyping: on}, rooms.ForPair(me.UserID, partner))
	return nil
}

// MarkRead flags every unread message from partnerID as read and returns
// how many changed. The receipt is published only when something changed.
func (s *Session) MarkRead(ctx context.Context, partnerID models.UserID) (int64, error) {
	me, err := s.self()
	if err != nil {
		return 0, err
	}
	partner, err := partnerOf(me.UserID, partnerID)
	if err != nil {
		return 0, err
	}

	exists, err := s.deps.Accounts.UserExists(ctx, partner)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: user %s", errs.ErrNotFound, partner)
	}

	n, err := s.deps.Store.MarkRangeRead(ctx, partner, me.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("partner", string(partner)).Msg("mark read")
		return 0, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}
	if n == 0 {
		return 0, nil
	}

	s.deps.Hub.Publish(ctx, models.MessagesReadEvent{
		ReaderID: me.UserID,
		SenderID: partner,
		Count:    n,
		ReadAt:   time.Now().UTC(),
	}, rooms.ForPair(me.UserID, partner), rooms.ForUser(partner))
	return n, nil
}

// SetPresence broadcasts an advisory status to the user's partners.
func (s *Session) SetPresence(ctx context.Context, status models.PresenceStatus) error {
	me, err := s.self()
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", errs.ErrInvalidRequest, status)
	}
	s.broadcastPresence(ctx, me.UserID, status, nil)
	return nil
}

func (s *Session) History(ctx context.Context, partnerID models.UserID, page, pageSize int) (*models.HistoryPayload, error) {
	me, err := s.self()
	if err != nil {
		return nil, err
	}
	return s.deps.Conversations.History(ctx, me.UserID, partnerID, page, pageSize)
}

func (s *Session) UnreadCount(ctx context.Context) (int, error) {
	me, err := s.self()
	if err != nil {
		return 0, err
	}
	return s.deps.Conversations.UnreadCount(ctx, me.UserID)
}

// Close moves the session to Closed and terminates the transport. When this
// was the user's last live connection, partners are told the user is
// offline. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if prev != StateAuthenticated {
		s.conn.Close()
		return
	}

	// Leave every room before the transport goes away so no publish
	// snapshot can include a closing connection.
	dep, ok := s.deps.Registry.Unregister(s.id)
	s.conn.Close()
	if !ok || !dep.Last {
		return
	}

	s.deps.Limiter.Forget(dep.UserID)
	var joined []models.UserID
	for _, room := range dep.Rooms {
		if p, ok := room.Partner(dep.UserID); ok {
			joined = append(joined, p)
		}
	}
	// A reconnect may have raced the close; its online broadcast wins.
	if s.deps.Registry.IsOnline(dep.UserID) {
		return
	}
	s.broadcastPresence(context.Background(), dep.UserID, models.PresenceOffline, joined)
}

// broadcastPresence publishes status to the personal room of every partner:
// anyone the user has exchanged messages with, anyone whose conversation a
// live connection of the user has joined, and extra.
func (s *Session) broadcastPresence(ctx context.Context, user models.UserID, status models.PresenceStatus, extra []models.UserID) {
	ctx = context.WithoutCancel(ctx)
	if s.deps.PresenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.PresenceTimeout)
		defer cancel()
	}

	seen := make(map[models.UserID]struct{})
	var targets []rooms.ID
	add := func(ids []models.UserID) {
		for _, p := range ids {
			if p == user || p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			targets = append(targets, rooms.ForUser(p))
		}
	}

	add(extra)
	add(s.deps.Registry.PartnersOf(user))
	if stored, err := s.deps.Store.ListPartners(ctx, user); err != nil {
		s.log.Warn().Err(err).Msg("list partners for presence")
	} else {
		add(stored)
	}

	if len(targets) == 0 {
		return
	}
	res := s.deps.Hub.Publish(ctx, models.UserStatusChangedEvent{
		UserID:    user,
		Status:    status,
		ChangedAt: time.Now().UTC(),
	}, targets...)
	s.log.Debug().Str("status", string(status)).Int("partners", len(targets)).Int("delivered", res.Delivered).Msg("presence broadcast")
}
