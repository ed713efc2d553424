package jwt

import (
	"context"
	"net/http"
	"strings"

	"lobbyhub/internal/pkg/logx"
)

type contextKey string

const (
	// ContextAuthPayloadKey stores the parsed Payload in the request Context.
	ContextAuthPayloadKey contextKey = "auth_payload"
)

// IdentityExtractorMiddleware extracts and validates a bearer token from the
// Authorization header and injects the Payload into the Context on success.
// It never interrupts the request; missing or invalid tokens leave the
// request anonymous and route handlers decide whether that is acceptable.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ParseToken(parts[1], secretKey)
			if err != nil {
				logx.Warn("Invalid or expired JWT provided, treating as anonymous", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPayloadFromContext extracts the authenticated Payload from the request
// Context. A nil return means the request is anonymous.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}
	return payload
}
