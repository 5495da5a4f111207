package jwt

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims identify the caller of a guarded operation. Subject is the user id;
// TeamID is optional.
type Claims struct {
	TeamID string `json:"team_id,omitempty"`
	jwtlib.RegisteredClaims
}

// Principal is the authenticated caller stored in request context.
type Principal struct {
	UserID string
	TeamID string
}
