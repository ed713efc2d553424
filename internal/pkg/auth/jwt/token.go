/*
Package jwt wraps access-token generation and validation for the simulated
lobby backend. Access tokens are short-lived HS256 JWTs; refresh tokens are
opaque and live in the store, not here.
*/
package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AccessExpiration is the lifetime of one access token. The client
	// refreshes proactively inside the last two minutes of this window.
	AccessExpiration = 30 * time.Minute

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "LobbyHub-Sim"
)

// GenerateToken creates and signs a new access token for the identity.
func GenerateToken(userID int64, username, secretKey string) (string, error) {
	now := time.Now()

	payload := &Payload{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates an access token string.
func ParseToken(tokenString, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}
