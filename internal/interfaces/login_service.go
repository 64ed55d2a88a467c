package interfaces

import (
	"context"

	"github.com/ternarybob/clavis/internal/models"
)

// FlowStatus is a read-only snapshot of the login service's current state,
// served while a flow may be in flight.
type FlowStatus struct {
	Active    bool               `json:"active"`
	Session   *models.AuthSession `json:"session,omitempty"`
	LastRunAt string             `json:"last_run_at,omitempty"`
}

// LoginService runs automated login flows against the portal. At most one
// flow executes at a time; a trigger while one is in flight fails with the
// busy error rather than queueing.
type LoginService interface {
	// Login runs one complete flow and returns its terminal result. The
	// result is definitive: every flow ends in success or a classified
	// failure within the configured step timeouts.
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)

	// Status reports whether a flow is active and its session snapshot.
	Status() FlowStatus
}
