// Package identity provides anonymous per-device viewer identity.
// Viewers are never asked to log in; a long-lived cookie carries a
// random UUID that keys their sessions and transcript rows.
package identity

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	ViewerCookieName   = "evalubot_viewer_id"
	viewerCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const viewerIDKey contextKey = iota

// ViewerIDFromContext extracts the viewer ID from the request context.
func ViewerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(viewerIDKey).(string); ok {
		return v
	}
	return ""
}

func isValidViewerID(id string) bool {
	return uuid.Validate(id) == nil
}

func setViewerCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ViewerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(viewerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(viewerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateViewerID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(ViewerCookieName); err == nil && isValidViewerID(c.Value) {
		// Refresh the expiry so active viewers keep their identity.
		setViewerCookie(w, c.Value, isDev)
		return c.Value
	}

	id := uuid.NewString()
	setViewerCookie(w, id, isDev)
	return id
}

// Middleware injects an anonymous viewer ID into the request context,
// minting one on first contact.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewerID := getOrCreateViewerID(w, r, isDev)
			ctx := context.WithValue(r.Context(), viewerIDKey, viewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
