package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/crowdjuke/crowdjuke/internal/service"
)

type contextKey string

const (
	ctxKeyGuestID   contextKey = "guest_id"
	ctxKeySessionID contextKey = "token_session_id"
)

// GuestID returns the guest identity carried by the request's join token, or
// "" for anonymous requests.
func GuestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyGuestID).(string)
	return v
}

// TokenSessionID returns the session the join token was issued for.
func TokenSessionID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySessionID).(string)
	return v
}

// JoinTokenMiddleware resolves a Bearer join token into the request context.
// Requests without a token pass through anonymously; a token that is present
// but invalid is rejected so clients notice expiry instead of silently losing
// their identity.
func JoinTokenMiddleware(sessions service.SessionService, h *HTTPHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(auth, "Bearer ")
			if token == auth || token == "" {
				h.respondError(w, http.StatusUnauthorized, "Malformed authorization header", nil)
				return
			}

			ssID, guestID, err := sessions.VerifyJoinToken(token)
			if err != nil {
				h.respondError(w, http.StatusUnauthorized, "Invalid or expired join token", err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyGuestID, guestID)
			ctx = context.WithValue(ctx, ctxKeySessionID, ssID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
