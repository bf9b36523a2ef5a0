package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims accepted by the scoring service. The subject is
// the calling user or service account.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// HasRole reports whether the claims carry the given role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the claims carry at least one of roles.
func (c Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

const (
	// RoleModelAdmin may trigger training and publish model versions.
	RoleModelAdmin = "model_admin"
	// RoleScorer may request fraud scores.
	RoleScorer = "scorer"
	// RoleAnalyst may read training history.
	RoleAnalyst = "analyst"
)
