package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/gorilla/mux"
)

// DefaultUserVar is the route variable RequirePHIAccess reads the owner from.
const DefaultUserVar = "userID"

// RequirePHIAccess gates a route serving resourceType records. The owner is
// the mux route variable userVar (DefaultUserVar when empty); the caller is
// the user attached by RequireSession or goGuard.WithUserID.
//
// Denials answer 403 with a generic body. The reason is audited, not echoed.
func RequirePHIAccess(p *goGuard.Provider, resourceType, userVar string) func(http.Handler) http.Handler {
	if userVar == "" {
		userVar = DefaultUserVar
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			current := goGuard.UserIDFromContext(r.Context())
			requested := mux.Vars(r)[userVar]
			if d := p.ValidatePHIAccess(r.Context(), current, requested, resourceType); !d.Granted {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
