package access

import "context"

const (
	// ReasonNotAuthenticated is returned when no current user is known.
	ReasonNotAuthenticated = "not authenticated"
	// ReasonOwnDataOnly is returned when the requested records belong to someone else.
	ReasonOwnDataOnly = "users may only access their own data"
)

// Decision is the outcome of a PHI access check.
type Decision struct {
	Granted bool
	Reason  string
}

// Recorder receives one attempt record per check and one outcome record.
// *audit.Logger satisfies it.
type Recorder interface {
	LogDataAccess(ctx context.Context, userID, requestedUserID, resourceType string)
	LogUnauthorized(ctx context.Context, userID, resourceType, reason string)
	LogPHIAccess(ctx context.Context, userID, resourceType string)
}

// Gate is the single check every read of protected health data passes through.
// It grants access only when the current user is the owner of the records.
type Gate struct {
	recorder Recorder
	observe  func(Decision)
}

// NewGate returns a Gate. observe, when non-nil, sees every decision.
func NewGate(recorder Recorder, observe func(Decision)) *Gate {
	return &Gate{recorder: recorder, observe: observe}
}

// Validate decides whether currentUserID may read requestedUserID's records
// of resourceType. An empty currentUserID is unauthenticated and denied.
func (g *Gate) Validate(ctx context.Context, currentUserID, requestedUserID, resourceType string) Decision {
	if g.recorder != nil {
		g.recorder.LogDataAccess(ctx, currentUserID, requestedUserID, resourceType)
	}

	var d Decision
	switch {
	case currentUserID == "":
		d = Decision{Reason: ReasonNotAuthenticated}
	case currentUserID != requestedUserID:
		d = Decision{Reason: ReasonOwnDataOnly}
	default:
		d = Decision{Granted: true}
	}

	if g.recorder != nil {
		if d.Granted {
			g.recorder.LogPHIAccess(ctx, currentUserID, resourceType)
		} else {
			g.recorder.LogUnauthorized(ctx, currentUserID, resourceType, d.Reason)
		}
	}
	if g.observe != nil {
		g.observe(d)
	}
	return d
}
