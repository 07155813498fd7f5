package registry

import (
	"sort"
	"sync"

	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/log"
)

// memoryRegistry keeps membership in process memory with one mutex per
// room. The rooms map itself is guarded separately so lookups do not
// contend with membership mutation in other rooms. An auxiliary
// user → connection → rooms index backs RemoveUserEverywhere.
//
// Lock order: rooms map lock is never held while waiting on a room
// lock is fine (it is released before the room lock is taken), and a
// room lock is taken before the index lock, never the reverse.
type memoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	indexMu sync.Mutex
	byUser  map[string]map[string]map[string]struct{} // userID -> connID -> roomIDs
}

type room struct {
	mu      sync.Mutex
	members map[string]Member // connectionID -> member

	// closed is set under mu when cleanupIfEmpty unlinks the room
	// from the rooms map. A writer holding a stale pointer must not
	// insert into an unlinked room; it re-resolves instead.
	closed bool
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{
		rooms:  make(map[string]*room),
		byUser: make(map[string]map[string]map[string]struct{}),
	}
}

func (r *memoryRegistry) getRoom(roomID string, create bool) *room {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm != nil || !create {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm = r.rooms[roomID]; rm == nil {
		rm = &room{members: make(map[string]Member)}
		r.rooms[roomID] = rm
	}
	return rm
}

func (r *memoryRegistry) Add(roomID string, m Member) ([]Member, bool) {
	var (
		members []Member
		already bool
	)
	for {
		rm := r.getRoom(roomID, true)

		rm.mu.Lock()
		if rm.closed {
			// cleanupIfEmpty unlinked this room between the lookup
			// and the lock; inserting now would land in an orphan
			// object that Snapshot can no longer see.
			rm.mu.Unlock()
			continue
		}
		_, already = rm.members[m.ConnectionID]
		rm.members[m.ConnectionID] = m
		members = snapshotLocked(rm)
		r.indexAdd(m.UserID, m.ConnectionID, roomID)
		rm.mu.Unlock()
		break
	}

	l := log.L()
	l.Debug().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldConnectionID, m.ConnectionID).
		Str(log.FieldUserID, m.UserID).
		Bool("already_present", already).
		Msg("registry add")

	return members, already
}

func (r *memoryRegistry) Remove(roomID, connectionID string) ([]Member, bool) {
	rm := r.getRoom(roomID, false)
	if rm == nil {
		return nil, false
	}

	rm.mu.Lock()
	m, ok := rm.members[connectionID]
	if ok {
		delete(rm.members, connectionID)
		r.indexRemove(m.UserID, connectionID, roomID)
	}
	members := snapshotLocked(rm)
	rm.mu.Unlock()

	if ok {
		r.cleanupIfEmpty(roomID)
	}
	return members, ok
}

func (r *memoryRegistry) RemoveUserEverywhere(userID string) []Eviction {
	// Snapshot the user's (connection, room) pairs first; room locks
	// are then taken one at a time.
	r.indexMu.Lock()
	occupied := make(map[string][]string) // roomID -> connectionIDs
	for connID, roomIDs := range r.byUser[userID] {
		for roomID := range roomIDs {
			occupied[roomID] = append(occupied[roomID], connID)
		}
	}
	r.indexMu.Unlock()

	evictions := r.evictOccupied(userID, occupied)

	l := log.L()
	l.Debug().Str(log.FieldUserID, userID).Int("rooms", len(evictions)).Msg("registry remove user everywhere")
	return evictions
}

func (r *memoryRegistry) RemoveConnectionEverywhere(userID, connectionID string) []Eviction {
	r.indexMu.Lock()
	occupied := make(map[string][]string)
	for roomID := range r.byUser[userID][connectionID] {
		occupied[roomID] = []string{connectionID}
	}
	r.indexMu.Unlock()

	evictions := r.evictOccupied(userID, occupied)

	l := log.L()
	l.Debug().
		Str(log.FieldUserID, userID).
		Str(log.FieldConnectionID, connectionID).
		Int("rooms", len(evictions)).
		Msg("registry remove connection everywhere")
	return evictions
}

// evictOccupied removes the given roomID -> connectionIDs occupancy,
// one room lock at a time, and reports the per-room outcome.
func (r *memoryRegistry) evictOccupied(userID string, occupied map[string][]string) []Eviction {
	if len(occupied) == 0 {
		return nil
	}

	// Deterministic room order keeps fan-out and tests stable.
	roomIDs := make([]string, 0, len(occupied))
	for roomID := range occupied {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	evictions := make([]Eviction, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		rm := r.getRoom(roomID, false)
		if rm == nil {
			continue
		}

		rm.mu.Lock()
		var removed []Member
		for _, connID := range occupied[roomID] {
			if m, ok := rm.members[connID]; ok && m.UserID == userID {
				delete(rm.members, connID)
				removed = append(removed, m)
				r.indexRemove(userID, connID, roomID)
			}
		}
		remaining := snapshotLocked(rm)
		rm.mu.Unlock()

		if len(removed) > 0 {
			evictions = append(evictions, Eviction{
				RoomID:    roomID,
				Removed:   removed,
				Remaining: remaining,
			})
			r.cleanupIfEmpty(roomID)
		}
	}
	return evictions
}

func (r *memoryRegistry) Snapshot(roomID string) []Member {
	rm := r.getRoom(roomID, false)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return snapshotLocked(rm)
}

func (r *memoryRegistry) CountByRole(roomID string, role domain.Role) int {
	rm := r.getRoom(roomID, false)
	if rm == nil {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	n := 0
	for _, m := range rm.members {
		if m.Role == role {
			n++
		}
	}
	return n
}

// snapshotLocked copies the member set. Callers hold the room lock.
func snapshotLocked(rm *room) []Member {
	members := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].ConnectionID < members[j].ConnectionID
	})
	return members
}

func (r *memoryRegistry) indexAdd(userID, connID, roomID string) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[string]map[string]struct{})
		r.byUser[userID] = conns
	}
	rooms := conns[connID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		conns[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (r *memoryRegistry) indexRemove(userID, connID, roomID string) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	conns := r.byUser[userID]
	if conns == nil {
		return
	}
	if rooms := conns[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(conns, connID)
		}
	}
	if len(conns) == 0 {
		delete(r.byUser, userID)
	}
}

// cleanupIfEmpty drops the room entry once its last member leaves. The
// rooms map lock is taken first, then the room lock, matching getRoom.
// The room is marked closed in the same critical section that unlinks
// it, so a concurrent Add holding the stale pointer observes the flag
// and re-resolves; the rooms map never contains a closed room.
func (r *memoryRegistry) cleanupIfEmpty(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[roomID]
	if rm == nil {
		return
	}
	rm.mu.Lock()
	if len(rm.members) == 0 {
		rm.closed = true
		delete(r.rooms, roomID)
	}
	rm.mu.Unlock()
}
