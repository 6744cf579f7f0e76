package models

// Identity is the authenticated caller of an entry point
type Identity struct {
	UserID   string `json:"sub"`
	FamilyID string `json:"family_id"`
	Role     string `json:"role"`
}

// IsGuardian reports whether the caller may manage rules and penalties
func (i Identity) IsGuardian() bool {
	return i.Role == RoleAdmin || i.Role == RoleParent
}

// IsSystem reports whether the caller is a trusted trigger source
func (i Identity) IsSystem() bool {
	return i.Role == RoleSystem
}

// CanAccess reports whether the caller belongs to familyID
func (i Identity) CanAccess(familyID string) bool {
	return i.IsSystem() || (i.FamilyID != "" && i.FamilyID == familyID)
}
