package interfaces

import "github.com/ternarybob/clavis/internal/models"

// SnapshotRecorder persists page snapshots captured when a login flow ends
// badly, for offline diagnosis of portal markup drift.
type SnapshotRecorder interface {
	// Record stores a snapshot tagged with the flow it came from. Failures
	// are logged, never propagated; diagnostics must not affect a flow.
	Record(sessionID string, state models.FlowState, snapshot models.PageSnapshot)
}
