package auth

import "strings"

// Role is a coarse access level carried in JWT claims.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole lowercases and validates a role string.
func NormalizeRole(role string) (Role, bool) {
	normalized := Role(strings.ToLower(strings.TrimSpace(role)))
	_, ok := roleRank[normalized]
	return normalized, ok
}

// RoleAtLeast reports whether have meets the required level.
func RoleAtLeast(have, required Role) bool {
	return roleRank[have] >= roleRank[required]
}
