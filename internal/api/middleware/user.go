package middleware

import (
	"context"
	"net/http"
)

const (
	UserIDHeader = "X-User-ID"
	DefaultUser  = "default_user"
)

type ctxKeyUserID struct{}

// UserID resolves the calling user from the X-User-ID header.
// Authentication happens in front of this service.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			userID = DefaultUser
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKeyUserID{}).(string); ok {
		return id
	}
	if id := r.Header.Get(UserIDHeader); id != "" {
		return id
	}
	return DefaultUser
}
