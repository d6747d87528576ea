package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Lesson/internal/domain"
	"github.com/dkeye/Lesson/internal/protocol"
	"github.com/rs/zerolog/log"
)

// room is the coordinator-private presence state of one lesson session.
// A room exists only while it has participants or until the idle sweep
// reclaims it; creation timestamps reset on recreation.
type room struct {
	id           domain.RoomID
	participants map[domain.ParticipantID]*domain.Participant
	conns        map[domain.ParticipantID]ConnID
	createdAt    time.Time
	lastActivity time.Time
}

type assoc struct {
	room        domain.RoomID
	participant domain.ParticipantID
}

// Coordinator owns the room registry. Every mutation, the idle sweep
// included, is serialized through one mutex so no two transitions on the
// same room ever race.
type Coordinator struct {
	mu     sync.Mutex
	rooms  map[domain.RoomID]*room
	conns  map[ConnID]assoc
	sender Sender

	idleThreshold time.Duration
	now           func() time.Time
}

func NewCoordinator(sender Sender, idleThreshold time.Duration) *Coordinator {
	return &Coordinator{
		rooms:         make(map[domain.RoomID]*room),
		conns:         make(map[ConnID]assoc),
		sender:        sender,
		idleThreshold: idleThreshold,
		now:           time.Now,
	}
}

// Join upserts the participant into the room, creating the room on first
// join. A second join with the same identity overwrites the existing entry
// so a rejoin after network loss needs no explicit leave first. The joiner
// gets the full snapshot; everyone else gets a participantJoined delta.
func (c *Coordinator) Join(conn ConnID, roomID domain.RoomID, p *domain.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A connection can sit in at most one room under one identity; a join
	// elsewhere or under a new identity is an implicit leave first.
	if prev, ok := c.conns[conn]; ok && (prev.room != roomID || prev.participant != p.ID) {
		c.removeLocked(conn, prev)
	}

	now := c.now()
	r, ok := c.rooms[roomID]
	if !ok {
		r = &room{
			id:           roomID,
			participants: make(map[domain.ParticipantID]*domain.Participant),
			conns:        make(map[domain.ParticipantID]ConnID),
			createdAt:    now,
			lastActivity: now,
		}
		c.rooms[roomID] = r
		log.Info().Str("module", "core.coordinator").Str("room", string(roomID)).Msg("room created")
	}

	// Overwrite on duplicate identity: the old connection, if different,
	// loses its association so its later messages become benign no-ops.
	if oldConn, ok := r.conns[p.ID]; ok && oldConn != conn {
		delete(c.conns, oldConn)
	}

	p.JoinedAt = now
	r.participants[p.ID] = p
	r.conns[p.ID] = conn
	r.lastActivity = now
	c.conns[conn] = assoc{room: roomID, participant: p.ID}

	log.Info().Str("module", "core.coordinator").
		Str("room", string(roomID)).
		Str("participant", string(p.ID)).
		Int("count", len(r.participants)).
		Msg("participant joined")

	snapshot := r.snapshot()
	c.sender.Send(conn, protocol.NewSessionJoined(roomID, snapshot))
	c.broadcastLocked(r, conn, protocol.NewParticipantJoined(*p, snapshot))
}

// Leave handles both the explicit leave message and a transport-level
// disconnect; the transitions are identical. Unassociated connections
// no-op.
func (c *Coordinator) Leave(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.conns[conn]
	if !ok {
		return
	}
	c.removeLocked(conn, a)
}

// Disconnect is the transport-side alias for Leave; the gateway calls it
// synchronously before the connection identity can be reused.
func (c *Coordinator) Disconnect(conn ConnID) { c.Leave(conn) }

// CursorUpdate mutates the sender's cursor and fans the move out to the
// rest of the room. Messages from unassociated connections lose the race
// with a disconnect and are dropped silently.
func (c *Coordinator) CursorUpdate(conn ConnID, cursor domain.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, p, ok := c.resolveLocked(conn)
	if !ok {
		log.Debug().Str("module", "core.coordinator").Str("conn", string(conn)).Msg("cursor update from unassociated connection")
		return
	}
	cur := cursor
	p.Cursor = &cur
	r.lastActivity = c.now()
	c.broadcastLocked(r, conn, protocol.NewCursorMoved(p.ID, cursor))
}

// ActivityStatus flips the idle/active heartbeat flag.
func (c *Coordinator) ActivityStatus(conn ConnID, isActive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, p, ok := c.resolveLocked(conn)
	if !ok {
		log.Debug().Str("module", "core.coordinator").Str("conn", string(conn)).Msg("activity status from unassociated connection")
		return
	}
	p.IsActive = isActive
	r.lastActivity = c.now()
	c.broadcastLocked(r, conn, protocol.NewActivityChanged(p.ID, isActive))
}

// SweepIdle removes rooms whose last activity is older than the idle
// threshold, participant count notwithstanding. It is the backstop for
// connections that vanished without a disconnect ever reaching us, so
// nobody useful is left to notify and no broadcasts are emitted. Returns
// the number of rooms removed.
func (c *Coordinator) SweepIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.idleThreshold)
	removed := 0
	for id, r := range c.rooms {
		if !r.lastActivity.Before(cutoff) {
			continue
		}
		for _, conn := range r.conns {
			delete(c.conns, conn)
		}
		delete(c.rooms, id)
		removed++
		log.Info().Str("module", "core.coordinator").
			Str("room", string(id)).
			Time("last_activity", r.lastActivity).
			Msg("idle room swept")
	}
	return removed
}

// RunSweeper feeds the sweep into the same serialization point as message
// handling on a fixed cadence, until ctx is done.
func (c *Coordinator) RunSweeper(done <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			c.SweepIdle()
		}
	}
}

// Rooms lists presence state for the read-only HTTP surface.
func (c *Coordinator) Rooms() []RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RoomInfo, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, RoomInfo{
			ID:               r.id,
			ParticipantCount: len(r.participants),
			CreatedAt:        r.createdAt,
			LastActivity:     r.lastActivity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RoomConns reports the connections currently in a room. The gateway uses
// this as the authoritative broadcast set instead of keeping its own room
// index that could diverge.
func (c *Coordinator) RoomConns(roomID domain.RoomID) []ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]ConnID, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

func (c *Coordinator) resolveLocked(conn ConnID) (*room, *domain.Participant, bool) {
	a, ok := c.conns[conn]
	if !ok {
		return nil, nil, false
	}
	r, ok := c.rooms[a.room]
	if !ok {
		return nil, nil, false
	}
	p, ok := r.participants[a.participant]
	if !ok {
		return nil, nil, false
	}
	return r, p, true
}

// removeLocked takes the participant out of its room, tells the remaining
// members, and deletes the room the moment it empties.
func (c *Coordinator) removeLocked(conn ConnID, a assoc) {
	delete(c.conns, conn)

	r, ok := c.rooms[a.room]
	if !ok {
		return
	}
	p, ok := r.participants[a.participant]
	if !ok {
		return
	}
	// The association may already have been stolen by a rejoin with the
	// same identity on a newer connection; leave that entry alone.
	if r.conns[a.participant] != conn {
		return
	}
	delete(r.participants, a.participant)
	delete(r.conns, a.participant)

	log.Info().Str("module", "core.coordinator").
		Str("room", string(a.room)).
		Str("participant", string(a.participant)).
		Int("count", len(r.participants)).
		Msg("participant left")

	if len(r.participants) == 0 {
		delete(c.rooms, a.room)
		log.Info().Str("module", "core.coordinator").Str("room", string(a.room)).Msg("empty room removed")
		return
	}
	r.lastActivity = c.now()
	c.broadcastLocked(r, conn, protocol.NewParticipantLeft(*p, r.snapshot()))
}

// broadcastLocked fans msg out to every connection in the room except the
// originator. Sends are fire-and-forget; a recipient that vanished
// mid-broadcast is the sender's problem, not ours.
func (c *Coordinator) broadcastLocked(r *room, from ConnID, msg protocol.ServerMessage) {
	for _, conn := range r.conns {
		if conn == from {
			continue
		}
		c.sender.Send(conn, msg)
	}
}

// snapshot copies the participant list, ordered by join time so payloads
// are stable for clients and tests.
func (r *room) snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
