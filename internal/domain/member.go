package domain

// Role of a room member. Performers hold the model role in their own
// conversations; everyone else is a member.
type Role string

const (
	RoleModel  Role = "model"
	RoleMember Role = "member"
)

// Identity is the resolved actor behind a connection.
type Identity struct {
	UserID      string `json:"user_id"`
	IsPerformer bool   `json:"is_performer"`
	DisplayName string `json:"display_name"`
	GhostMode   bool   `json:"ghost_mode,omitempty"`
}

// RoleFor derives the room role for an identity in a conversation.
func RoleFor(identity *Identity, conv *Conversation) Role {
	if identity.UserID == conv.PerformerID {
		return RoleModel
	}
	return RoleMember
}

// RankInfo is the per-member rank computed by the rank service.
type RankInfo struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}

// UnrankedPlaceholder is used when the rank service is unavailable;
// rank is best-effort and must never block membership flow.
func UnrankedPlaceholder() RankInfo {
	return RankInfo{Level: 0, Label: "unranked"}
}

// MemberView is the per-member entry in room information snapshots.
type MemberView struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Role        Role     `json:"role"`
	Rank        RankInfo `json:"rank"`
}
