package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the caller of a cart or order endpoint: a registered user or a
// guest session, never both.
type Identity struct {
	Identifier string
	IsUser     bool
}

// IdentityMiddleware resolves the caller from X-User-ID or X-Guest-ID. The
// gateway in front validates the token and forwards the user id; guests carry
// their session id themselves. A user id wins when both are present.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			id = Identity{Identifier: userID, IsUser: true}
		} else if guestID := r.Header.Get("X-Guest-ID"); guestID != "" {
			id = Identity{Identifier: guestID, IsUser: false}
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
