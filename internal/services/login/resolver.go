package login

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// probeWindow bounds a single candidate visibility check. The field's
// resolution timeout bounds the whole candidate list, so short probes keep
// an absent first candidate from starving the rest.
const probeWindow = 500 * time.Millisecond

// SelectorResolver locates form fields by trying an ordered list of
// candidate selectors until one becomes visible. When the portal renames an
// element, recovery is a profile edit adding a candidate, not a code change.
type SelectorResolver struct {
	logger arbor.ILogger
}

// NewSelectorResolver creates a selector resolver
func NewSelectorResolver(logger arbor.ILogger) *SelectorResolver {
	return &SelectorResolver{logger: logger}
}

// Resolve returns the first candidate selector that becomes visible before
// the timeout. Candidates are probed in declared order, round after round,
// until the shared budget for the whole field is spent. A candidate only
// wins after every candidate before it has been probed and found not yet
// visible in the same round.
func (r *SelectorResolver) Resolve(ctx context.Context, session interfaces.BrowserSession, spec models.FieldSpec, timeout time.Duration) (string, error) {
	started := time.Now()
	deadline := started.Add(timeout)

	for round := 0; time.Now().Before(deadline); round++ {
		for _, candidate := range spec.Candidates {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}

			window := probeWindow
			if remaining < window {
				window = remaining
			}

			probeCtx, cancel := context.WithTimeout(ctx, window)
			err := session.WaitVisible(probeCtx, candidate)
			cancel()

			if err == nil {
				r.logger.Debug().
					Str("field", spec.Name).
					Str("selector", candidate).
					Int("round", round).
					Dur("elapsed", time.Since(started)).
					Msg("Resolved field selector")
				return candidate, nil
			}

			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
	}

	r.logger.Warn().
		Str("field", spec.Name).
		Strs("candidates", spec.Candidates).
		Dur("timeout", timeout).
		Msg("No candidate selector became visible before field deadline")

	return "", &models.FieldNotFoundError{Field: spec.Name, Candidates: spec.Candidates}
}
