package registry

import "github.com/velvetcast/session-service/internal/domain"

// Member is one (connection, user, role) tuple inside a room. A user
// with several tabs or devices holds one entry per connection.
type Member struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	Role         domain.Role
}

// Eviction describes the outcome of removing a user from one room:
// the entries that were dropped and the members still present, so
// callers can notify the remainder without a second query.
type Eviction struct {
	RoomID    string
	Removed   []Member
	Remaining []Member
}

// Registry is the authoritative in-memory room-membership index. All
// mutating operations are serialized per room; mutate-then-snapshot is
// atomic under the room lock. Implementations must never hold two room
// locks at once.
type Registry interface {
	// Add registers a connection in a room. Re-adding the same
	// (room, connection) overwrites the role instead of duplicating.
	// It returns the post-mutation member snapshot and whether the
	// connection was already present, so callers can suppress
	// duplicate join broadcasts.
	Add(roomID string, m Member) (members []Member, alreadyPresent bool)

	// Remove drops a connection from a room. Removing an absent
	// connection is a no-op, not an error.
	Remove(roomID, connectionID string) (members []Member, removed bool)

	// RemoveUserEverywhere drops every connection belonging to the
	// user from every room it occupies, one room at a time, and
	// returns the affected rooms. Callers do not need to know the
	// room set in advance.
	RemoveUserEverywhere(userID string) []Eviction

	// RemoveConnectionEverywhere drops a single connection of the
	// user from every room it occupies. Sibling connections of the
	// same user, such as a fresh socket after a reconnect, stay
	// registered.
	RemoveConnectionEverywhere(userID, connectionID string) []Eviction

	// Snapshot returns the current members of a room.
	Snapshot(roomID string) []Member

	// CountByRole counts room members holding the given role.
	CountByRole(roomID string, role domain.Role) int
}
