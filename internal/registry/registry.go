// Package registry tracks every authenticated live connection, the user it
// belongs to and the rooms it occupies. All state sits behind one RWMutex:
// room snapshots used for fan-out are taken under the read lock, so a
// connection is either fully in a room or fully out of it.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"chat-live/internal/models"
	"chat-live/internal/rooms"
	"chat-live/pkg/logger"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection not registered")
)

type ConnID string

// Conn is the outbound side of a transport connection.
type Conn interface {
	// Send queues one frame, giving up when ctx is done.
	Send(ctx context.Context, frame []byte) error
	Close()
}

// Member is a snapshot entry used for fan-out.
type Member struct {
	ConnID ConnID
	UserID models.UserID
	Conn   Conn
}

// Departure describes a connection removed by Unregister.
type Departure struct {
	UserID models.UserID
	Rooms  []rooms.ID
	// Last is true when the user has no remaining live connections.
	Last bool
}

type entry struct {
	id       ConnID
	identity models.Identity
	conn     Conn
	joined   map[rooms.ID]struct{}
}

type Registry struct {
	mu      sync.RWMutex
	conns   map[ConnID]*entry
	users   map[models.UserID]map[ConnID]struct{}
	members map[rooms.ID]map[ConnID]*entry
	log     zerolog.Logger
}

func New() *Registry {
	return &Registry{
		conns:   make(map[ConnID]*entry),
		users:   make(map[models.UserID]map[ConnID]struct{}),
		members: make(map[rooms.ID]map[ConnID]*entry),
		log:     logger.Module("registry"),
	}
}

// Register binds an authenticated connection to its identity. first reports
// whether this is the user's only live connection.
func (r *Registry) Register(id ConnID, identity models.Identity, conn Conn) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return false, ErrAlreadyRegistered
	}

	e := &entry{
		id:       id,
		identity: identity,
		conn:     conn,
		joined:   make(map[rooms.ID]struct{}),
	}
	r.conns[id] = e

	set, ok := r.users[identity.UserID]
	if !ok {
		set = make(map[ConnID]struct{})
		r.users[identity.UserID] = set
	}
	set[id] = struct{}{}

	r.log.Info().Str("conn", string(id)).Str("user", string(identity.UserID)).Int("user_conns", len(set)).Msg("registered")
	return len(set) == 1, nil
}

// AddToRoom is idempotent.
func (r *Registry) AddToRoom(id ConnID, room rooms.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return ErrNotRegistered
	}
	if _, ok := e.joined[room]; ok {
		return nil
	}

	e.joined[room] = struct{}{}
	set, ok := r.members[room]
	if !ok {
		set = make(map[ConnID]*entry)
		r.members[room] = set
	}
	set[id] = e

	r.log.Debug().Str("conn", string(id)).Str("room", room.String()).Msg("joined room")
	return nil
}

// RemoveFromRoom is idempotent.
func (r *Registry) RemoveFromRoom(id ConnID, room rooms.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return ErrNotRegistered
	}
	if _, ok := e.joined[room]; !ok {
		return nil
	}
	r.detach(e, room)

	r.log.Debug().Str("conn", string(id)).Str("room", room.String()).Msg("left room")
	return nil
}

// Unregister removes the connection from every room and from the registry.
func (r *Registry) Unregister(id ConnID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return Departure{}, false
	}

	dep := Departure{UserID: e.identity.UserID, Rooms: make([]rooms.ID, 0, len(e.joined))}
	for room := range e.joined {
		dep.Rooms = append(dep.Rooms, room)
		r.detach(e, room)
	}
	delete(r.conns, id)

	if set, ok := r.users[e.identity.UserID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.users, e.identity.UserID)
			dep.Last = true
		}
	}

	r.log.Info().Str("conn", string(id)).Str("user", string(dep.UserID)).Bool("last", dep.Last).Msg("unregistered")
	return dep, true
}

// detach must be called with the write lock held.
func (r *Registry) detach(e *entry, room rooms.ID) {
	delete(e.joined, room)
	if set, ok := r.members[room]; ok {
		delete(set, e.id)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
}

// ConnectionsFor returns the user's live connections, sorted.
func (r *Registry) ConnectionsFor(user models.UserID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[user]
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) IsOnline(user models.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[user]) > 0
}

// Members returns one entry per connection present in any of the given
// rooms, as of a single consistent instant.
func (r *Registry) Members(roomIDs ...rooms.ID) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ConnID]struct{})
	var out []Member
	for _, room := range roomIDs {
		for id, e := range r.members[room] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, Member{ConnID: id, UserID: e.identity.UserID, Conn: e.conn})
		}
	}
	return out
}

// InRoom reports whether the connection currently occupies the room.
func (r *Registry) InRoom(id ConnID, room rooms.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	_, ok = e.joined[room]
	return ok
}

// RoomsOf returns the rooms the connection occupies.
func (r *Registry) RoomsOf(id ConnID) []rooms.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]rooms.ID, 0, len(e.joined))
	for room := range e.joined {
		out = append(out, room)
	}
	return out
}

// PartnersOf collects the partners of every pair room joined by any of the
// user's live connections.
func (r *Registry) PartnersOf(user models.UserID) []models.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[models.UserID]struct{})
	var out []models.UserID
	for id := range r.users[user] {
		for room := range r.conns[id].joined {
			p, ok := room.Partner(user)
			if !ok || p == user {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
