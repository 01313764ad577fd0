package http

import (
	"context"
	"net/http"
)

type terminalIDKey struct{}

// TerminalIDMiddleware requires the X-Terminal-ID header and puts the
// value in the request context. Every cart route is per-terminal.
func TerminalIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		terminalID := r.Header.Get("X-Terminal-ID")
		if terminalID == "" {
			respondError(w, http.StatusBadRequest, "missing_terminal", "X-Terminal-ID header is required")
			return
		}

		ctx := context.WithValue(r.Context(), terminalIDKey{}, terminalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func terminalIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(terminalIDKey{}).(string); ok {
		return id
	}
	return ""
}
