package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Presence is the live metadata for one connection in a tenant room
type Presence struct {
	ConnID      string    `json:"connId"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Color       string    `json:"color"`
	Page        string    `json:"page"`
	CursorX     float64   `json:"cursorX"`
	CursorY     float64   `json:"cursorY"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Identity is the room-scoped identity assigned to a joining connection
type Identity struct {
	ConnID string `json:"connId"`
	Color  string `json:"color"`
}

// memberColors is the palette cycled through by join order within a room.
var memberColors = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea",
	"#ea580c", "#0891b2", "#db2777", "#65a30d",
}

type member struct {
	presence Presence
	joinSeq  uint64
}

// room holds one tenant's live members behind its own mutex so that
// unrelated tenants never contend.
type room struct {
	mu      sync.Mutex
	members map[string]*member
	joinSeq uint64
}

// Registry tracks live connections per tenant and their presence
// metadata. All operations are total over in-memory state; a join for an
// unknown connection is a fresh join, never an error.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[uuid.UUID]*room
	tenantByID map[string]uuid.UUID

	staleAfter time.Duration
	now        func() time.Time
}

// NewRegistry creates a room registry. staleAfter bounds how long a
// silent connection still appears in membership snapshots.
func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		rooms:      make(map[uuid.UUID]*room),
		tenantByID: make(map[string]uuid.UUID),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (r *Registry) getOrCreateRoom(tenantID uuid.UUID) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[tenantID]
	if !ok {
		rm = &room{members: make(map[string]*member)}
		r.rooms[tenantID] = rm
	}
	return rm
}

func (r *Registry) getRoom(tenantID uuid.UUID) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[tenantID]
}

// Join registers the connection under the tenant, removing it from any
// prior tenant first. It returns the identity assigned to the joining
// connection and the room membership snapshot after the join. Re-joining
// the same tenant simply replaces prior metadata.
func (r *Registry) Join(connID string, tenantID, userID uuid.UUID, displayName, avatarURL, page string) (Identity, []Presence) {
	// A connection belongs to at most one room; leaving the previous
	// tenant happens before the new join is visible.
	r.mu.Lock()
	prev, hadPrev := r.tenantByID[connID]
	r.tenantByID[connID] = tenantID
	r.mu.Unlock()

	if hadPrev && prev != tenantID {
		if prevRoom := r.getRoom(prev); prevRoom != nil {
			prevRoom.mu.Lock()
			delete(prevRoom.members, connID)
			prevRoom.mu.Unlock()
		}
	}

	rm := r.getOrCreateRoom(tenantID)
	now := r.now()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, ok := rm.members[connID]
	if !ok {
		rm.joinSeq++
		m = &member{joinSeq: rm.joinSeq}
		rm.members[connID] = m
	}

	m.presence = Presence{
		ConnID:      connID,
		UserID:      userID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		Color:       memberColors[(m.joinSeq-1)%uint64(len(memberColors))],
		Page:        page,
		CursorX:     m.presence.CursorX,
		CursorY:     m.presence.CursorY,
		JoinedAt:    now,
		LastSeen:    now,
	}

	return Identity{ConnID: connID, Color: m.presence.Color}, rm.membersLocked(now, r.staleAfter)
}

// Leave removes the connection from the tenant's presence set. Lock
// cleanup is deliberately a separate call owned by the coordinator.
func (r *Registry) Leave(connID string, tenantID uuid.UUID) {
	r.mu.Lock()
	if cur, ok := r.tenantByID[connID]; ok && cur == tenantID {
		delete(r.tenantByID, connID)
	}
	r.mu.Unlock()

	if rm := r.getRoom(tenantID); rm != nil {
		rm.mu.Lock()
		delete(rm.members, connID)
		rm.mu.Unlock()
	}
}

// UpdatePresence overwrites the connection's presence metadata. It
// returns the tenant the connection belongs to so the caller can
// broadcast, and false when the connection never joined a room.
func (r *Registry) UpdatePresence(connID string, page string, x, y float64) (uuid.UUID, bool) {
	r.mu.RLock()
	tenantID, ok := r.tenantByID[connID]
	r.mu.RUnlock()
	if !ok {
		return uuid.Nil, false
	}

	rm := r.getRoom(tenantID)
	if rm == nil {
		return uuid.Nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, ok := rm.members[connID]
	if !ok {
		return uuid.Nil, false
	}

	if page != "" {
		m.presence.Page = page
	}
	m.presence.CursorX = x
	m.presence.CursorY = y
	m.presence.LastSeen = r.now()

	return tenantID, true
}

// UpdatePage moves the connection to another page, keeping its stored
// cursor coordinates. It returns the updated presence so the caller can
// broadcast it, and false when the connection never joined a room.
func (r *Registry) UpdatePage(connID, page string) (uuid.UUID, Presence, bool) {
	r.mu.RLock()
	tenantID, ok := r.tenantByID[connID]
	r.mu.RUnlock()
	if !ok {
		return uuid.Nil, Presence{}, false
	}

	rm := r.getRoom(tenantID)
	if rm == nil {
		return uuid.Nil, Presence{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, ok := rm.members[connID]
	if !ok {
		return uuid.Nil, Presence{}, false
	}

	m.presence.Page = page
	m.presence.LastSeen = r.now()

	return tenantID, m.presence, true
}

// Touch refreshes the connection's last-seen timestamp.
func (r *Registry) Touch(connID string) {
	r.mu.RLock()
	tenantID, ok := r.tenantByID[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if rm := r.getRoom(tenantID); rm != nil {
		rm.mu.Lock()
		if m, ok := rm.members[connID]; ok {
			m.presence.LastSeen = r.now()
		}
		rm.mu.Unlock()
	}
}

// Members returns a snapshot of the tenant's presence records ordered by
// join time, excluding stale entries.
func (r *Registry) Members(tenantID uuid.UUID) []Presence {
	rm := r.getRoom(tenantID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.membersLocked(r.now(), r.staleAfter)
}

// MemberConnIDs returns the connection ids currently in the tenant room.
func (r *Registry) MemberConnIDs(tenantID uuid.UUID) []string {
	rm := r.getRoom(tenantID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

// Tenant reports which tenant room the connection currently belongs to.
func (r *Registry) Tenant(connID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenantID, ok := r.tenantByID[connID]
	return tenantID, ok
}

// Disconnect removes the connection from whichever room it belongs to
// and returns that tenant id so the caller can broadcast the departure.
// Safe to call for connections that never joined.
func (r *Registry) Disconnect(connID string) (uuid.UUID, Presence, bool) {
	r.mu.Lock()
	tenantID, ok := r.tenantByID[connID]
	if ok {
		delete(r.tenantByID, connID)
	}
	r.mu.Unlock()

	if !ok {
		return uuid.Nil, Presence{}, false
	}

	rm := r.getRoom(tenantID)
	if rm == nil {
		return uuid.Nil, Presence{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, present := rm.members[connID]
	if !present {
		return tenantID, Presence{}, false
	}
	delete(rm.members, connID)

	return tenantID, m.presence, true
}

// Stats reports connection counts for the introspection API.
func (r *Registry) Stats() (total int, perTenant map[uuid.UUID]int) {
	r.mu.RLock()
	rooms := make(map[uuid.UUID]*room, len(r.rooms))
	for id, rm := range r.rooms {
		rooms[id] = rm
	}
	r.mu.RUnlock()

	perTenant = make(map[uuid.UUID]int)
	for id, rm := range rooms {
		rm.mu.Lock()
		n := len(rm.members)
		rm.mu.Unlock()
		if n > 0 {
			perTenant[id] = n
			total += n
		}
	}
	return total, perTenant
}

// membersLocked snapshots the room ordered by join sequence. Callers
// must hold the room mutex.
func (rm *room) membersLocked(now time.Time, staleAfter time.Duration) []Presence {
	out := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		if staleAfter > 0 && now.Sub(m.presence.LastSeen) > staleAfter {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].joinSeq < out[j].joinSeq
	})

	presences := make([]Presence, len(out))
	for i, m := range out {
		presences[i] = m.presence
	}
	return presences
}
