package models

import "github.com/golang-jwt/jwt/v5"

// UserClaims is the JWT payload attached to authenticated requests.
// Token issuance lives in the auth service upstream; this service only
// validates and reads the claims.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsStaff reports whether the claims belong to a mediator or admin.
func (c *UserClaims) IsStaff() bool {
	return c.Role == RoleMediator || c.Role == RoleAdmin
}
