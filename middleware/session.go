package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// RequireSession rejects requests when no session is live. A live session
// counts the request as user activity and attaches the session user to the
// request context for RequirePHIAccess.
func RequireSession(p *goGuard.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if !p.CheckSession(ctx) {
				http.Error(w, "session expired", http.StatusUnauthorized)
				return
			}
			userID := p.SessionUserID()
			if userID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			p.UpdateActivity(ctx)

			next.ServeHTTP(w, r.WithContext(goGuard.WithUserID(ctx, userID)))
		})
	}
}
