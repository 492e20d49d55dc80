package auth

import "slices"

const RoleAdmin = "ADMIN"

// Identity is a caller that has already been authenticated.
type Identity struct {
	UserID uint
	Roles  []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// IsPrivileged reports whether the caller may act on other users' resources.
func (i Identity) IsPrivileged() bool {
	return i.HasRole(RoleAdmin)
}

// Owns reports whether userID belongs to the caller.
func (i Identity) Owns(userID uint) bool {
	return i.UserID != 0 && i.UserID == userID
}
