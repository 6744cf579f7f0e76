package models

import "time"

// Member roles within a family. RoleSystem is reserved for trigger callers.
const (
	RoleAdmin  = "admin"
	RoleParent = "parent"
	RoleChild  = "child"
	RoleSystem = "system"
)

// Family represents a household sharing quests, rules and goals
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"` // IANA name, e.g. "America/New_York"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FamilyMember represents the relationship between a user and a family
type FamilyMember struct {
	FamilyID string    `json:"family_id"`
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// IsGuardian reports whether the member can manage rules and penalties
func (m FamilyMember) IsGuardian() bool {
	return m.Role == RoleAdmin || m.Role == RoleParent
}
