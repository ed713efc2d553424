package jwt

import "github.com/golang-jwt/jwt/v5"

// Payload carries the authenticated identity inside the access token.
type Payload struct {
	// UserID is the numeric account id, also mirrored into the subject claim.
	UserID int64 `json:"user_id"`

	// Username is carried for log context only; never trusted for authorization.
	Username string `json:"username"`

	jwt.RegisteredClaims
}
