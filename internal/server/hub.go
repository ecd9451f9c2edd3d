// Package server tracks rooms and their participants through the Registry
// type and performs every membership broadcast under the owning room's lock.
package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Registry owns the process-wide mapping of room identifier to Room. Rooms
// are created on first attach and removed as soon as the last session leaves.
//
// Lock order is Registry.mu before Room.mu. A room is only deleted while both
// are held, so a session attached to a room can use it without the registry.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	log   *slog.Logger
}

// Room is a named set of sessions. Pending sessions have connected but not
// yet sent their handshake; members have joined and appear in the roster.
type Room struct {
	id      string
	mu      sync.RWMutex
	pending map[uuid.UUID]*Client
	members map[uuid.UUID]*member
	order   []uuid.UUID
	log     *slog.Logger
}

type member struct {
	client   *Client
	identity Identity
}

// Member is a read-only view of one joined participant.
type Member struct {
	ID       uuid.UUID
	Identity Identity
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

func newRoom(id string, log *slog.Logger) *Room {
	return &Room{
		id:      id,
		pending: make(map[uuid.UUID]*Client),
		members: make(map[uuid.UUID]*member),
		log:     log.With("room", id),
	}
}

// GetOrCreate returns the room for id, creating it if needed. Attach goes
// through the same path. A room created here and never attached to is dropped
// by the next RemoveIfEmpty.
func (r *Registry) GetOrCreate(id string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(id)
}

func (r *Registry) getOrCreateLocked(id string) *Room {
	room, ok := r.rooms[id]
	if !ok {
		room = newRoom(id, r.log)
		r.rooms[id] = room
		r.log.Debug("Room created", "room", id, "rooms", len(r.rooms))
	}
	return room
}

// Attach registers c as a pending session of room id and returns the room.
func (r *Registry) Attach(id string, c *Client) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.getOrCreateLocked(id)
	room.mu.Lock()
	room.pending[c.id] = c
	room.mu.Unlock()
	return room
}

// Detach removes c from room id. A joined session triggers a leave event and
// a fresh userlist for whoever remains; a pending session leaves silently.
// The room is destroyed once nobody is left.
func (r *Registry) Detach(id string, c *Client) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	delete(room.pending, c.id)
	m, joined := room.members[c.id]
	if joined {
		delete(room.members, c.id)
		room.order = lo.Without(room.order, c.id)
	}

	r.removeIfEmptyLocked(room)
	r.mu.Unlock()

	if !joined || len(room.members) == 0 {
		return
	}

	room.broadcastLocked(uuid.Nil, encodePresence(TypeLeave, m.identity))
	room.broadcastUserListLocked()
}

// RemoveIfEmpty destroys room id when it holds no sessions at all. Detach
// applies the same rule after every departure.
func (r *Registry) RemoveIfEmpty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return r.removeIfEmptyLocked(room)
}

// removeIfEmptyLocked requires r.mu and at least a read lock on room.
func (r *Registry) removeIfEmptyLocked(room *Room) bool {
	if !room.emptyLocked() {
		return false
	}
	delete(r.rooms, room.id)
	r.log.Debug("Room destroyed", "room", room.id, "rooms", len(r.rooms))
	return true
}

// MembersOf returns the joined participants of room id in join order.
func (r *Registry) MembersOf(id string) []Member {
	r.mu.Lock()
	room, ok := r.rooms[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return room.Members()
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Clients returns every session currently attached to any room.
func (r *Registry) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var clients []*Client
	for _, room := range r.rooms {
		room.mu.RLock()
		clients = append(clients, lo.Values(room.pending)...)
		clients = append(clients, lo.Map(lo.Values(room.members), func(m *member, _ int) *Client {
			return m.client
		})...)
		room.mu.RUnlock()
	}
	return clients
}

// ID returns the room identifier.
func (room *Room) ID() string {
	return room.id
}

// Members returns the joined participants in join order.
func (room *Room) Members() []Member {
	room.mu.RLock()
	defer room.mu.RUnlock()

	return lo.Map(room.order, func(id uuid.UUID, _ int) Member {
		return Member{ID: id, Identity: room.members[id].identity}
	})
}

// Join moves c from pending to member with the given identity. The newcomer
// first receives every existing member's key, then each other member gets the
// newcomer's key followed by the join event, and finally the whole room gets
// the userlist. A repeated handshake replaces the identity in place.
func (room *Room) Join(c *Client, identity Identity) {
	room.mu.Lock()
	defer room.mu.Unlock()

	for _, other := range room.order {
		if other == c.id {
			continue
		}
		c.enqueue(encodePubKey(room.members[other].identity))
	}

	delete(room.pending, c.id)
	if m, ok := room.members[c.id]; ok {
		m.identity = identity
	} else {
		room.members[c.id] = &member{client: c, identity: identity}
		room.order = append(room.order, c.id)
	}

	join := encodePresence(TypeJoin, identity)
	key := encodePubKey(identity)
	for _, other := range room.order {
		if other == c.id {
			continue
		}
		peer := room.members[other].client
		peer.enqueue(key)
		peer.enqueue(join)
	}

	room.broadcastUserListLocked()
	room.log.Debug("Participant joined", "client", c.id, "members", len(room.members))
}

// Relay forwards raw to every joined member except the sender.
func (room *Room) Relay(sender uuid.UUID, raw []byte) int {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.broadcastLocked(sender, raw)
}

// broadcastLocked queues payload for every member other than except and
// returns how many were targeted. A peer whose queue is full is closed by
// enqueue; delivery to the rest continues.
func (room *Room) broadcastLocked(except uuid.UUID, payload []byte) int {
	targets := 0
	for _, id := range room.order {
		if id == except {
			continue
		}
		room.members[id].client.enqueue(payload)
		targets++
	}
	return targets
}

func (room *Room) broadcastUserListLocked() {
	users := lo.Map(room.order, func(id uuid.UUID, _ int) UserEntry {
		identity := room.members[id].identity
		return UserEntry{Data: identity.Nickname, IV: identity.NickIV}
	})
	room.broadcastLocked(uuid.Nil, encodeUserList(users))
}

func (room *Room) emptyLocked() bool {
	return len(room.pending) == 0 && len(room.members) == 0
}
