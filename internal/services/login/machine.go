// -----------------------------------------------------------------------
// Login Flow State Machine
// Drives one authentication attempt through navigation, variant detection,
// credential submission, outcome classification and cookie harvesting
// -----------------------------------------------------------------------

package login

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// FlowMachine sequences a login flow through its states. Each run opens a
// fresh browser session and releases it on every exit path. The machine
// only moves forward through states; the sole loop back is the explicit
// variant retry, which re-navigates and proceeds with the next untried
// variant's field mappings.
type FlowMachine struct {
	profile   *models.PortalProfile
	browsers  interfaces.BrowserFactory
	events    interfaces.EventService
	snapshots interfaces.SnapshotRecorder
	resolver  *SelectorResolver
	detector  *ChallengeDetector
	harvester *CookieHarvester
	config    common.BrowserConfig
	logger    arbor.ILogger
}

// NewFlowMachine creates a flow machine for the given portal profile
func NewFlowMachine(
	profile *models.PortalProfile,
	browsers interfaces.BrowserFactory,
	events interfaces.EventService,
	snapshots interfaces.SnapshotRecorder,
	config common.BrowserConfig,
	logger arbor.ILogger,
) *FlowMachine {
	return &FlowMachine{
		profile:   profile,
		browsers:  browsers,
		events:    events,
		snapshots: snapshots,
		resolver:  NewSelectorResolver(logger),
		detector:  NewChallengeDetector(profile, logger),
		harvester: NewCookieHarvester(profile, logger),
		config:    config,
		logger:    logger,
	}
}

// Run executes one complete login flow against the portal. It always
// returns a definitive terminal result; errors from the browsing
// primitives become failure results rather than propagating.
func (m *FlowMachine) Run(ctx context.Context, session *models.AuthSession, creds models.Credentials) *models.LoginResult {
	flowLogger := m.logger.WithCorrelationId(session.ID)

	flowLogger.Info().
		Str("login_url", m.profile.LoginURL).
		Str("username", creds.String()).
		Msg("Starting login flow")

	browser, err := m.browsers.NewSession(ctx)
	if err != nil {
		flowLogger.Error().Err(err).Msg("Failed to open browser session")
		m.transition(ctx, session, models.StateFailed, err.Error())
		return m.result(session, nil, err)
	}
	defer browser.Close()

	var (
		cookies    models.CookieSet
		attemptErr error
	)

	for attemptNo := 0; ; attemptNo++ {
		var forced models.FlowVariant
		if attemptNo > 0 {
			next, ok := m.nextUntried(session)
			if !ok {
				break
			}
			forced = next
			flowLogger.Info().
				Str("variant", string(forced)).
				Int("attempt", attemptNo+1).
				Msg("Retrying flow with next untried variant")
		}

		cookies, attemptErr = m.attempt(ctx, session, browser, creds, forced, flowLogger)

		if session.State == models.StateSuccess || session.State == models.StateChallengeBlocked {
			break
		}
		if !m.retryable(attemptErr) {
			break
		}
		if _, ok := m.nextUntried(session); !ok {
			flowLogger.Warn().
				Strs("attempted", variantNames(session.AttemptedList())).
				Msg("All known variants exhausted")
			break
		}
	}

	result := m.result(session, cookies, attemptErr)

	flowLogger.Info().
		Str("status", string(result.Status)).
		Str("state", string(session.State)).
		Str("error_kind", result.ErrorKind).
		Dur("duration", result.Duration).
		Msg("Login flow finished")

	return result
}

// attempt runs a single variant attempt: navigate, detect or force the
// variant, resolve and fill the fields, submit, settle, classify. On a
// success classification it harvests cookies before returning.
func (m *FlowMachine) attempt(
	ctx context.Context,
	session *models.AuthSession,
	browser interfaces.BrowserSession,
	creds models.Credentials,
	forced models.FlowVariant,
	flowLogger arbor.ILogger,
) (models.CookieSet, error) {
	m.transition(ctx, session, models.StateNavigatingToLogin, "")

	// Always straight to the login URL. Routing through the marketing site
	// degrades reliability, not just speed.
	if err := browser.Navigate(ctx, m.profile.LoginURL); err != nil {
		flowLogger.Error().Err(err).Str("url", m.profile.LoginURL).Msg("Login page navigation failed")
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	variant := forced
	if variant == "" {
		snapshot, err := browser.Snapshot(ctx)
		if err != nil {
			m.transition(ctx, session, models.StateFailed, err.Error())
			return nil, err
		}

		detected, err := DetectVariant(m.profile, snapshot)
		if err != nil {
			flowLogger.Warn().Err(err).Str("url", snapshot.URL).Msg("Login page variant not recognized")
			m.transition(ctx, session, models.StateFailed, err.Error())
			m.record(session, snapshot)
			return nil, err
		}
		variant = detected
	}

	session.Variant = variant
	session.MarkAttempted(variant)
	m.transition(ctx, session, models.StateVariantDetected, "")
	flowLogger.Info().Str("variant", string(variant)).Msg("Flow variant detected")

	m.transition(ctx, session, models.StateSubmittingCredentials, "")

	selectors := make(map[string]string, 3)
	for _, fieldName := range []string{models.FieldUsername, models.FieldPassword, models.FieldSubmit} {
		spec, ok := m.profile.FieldFor(variant, fieldName)
		if !ok {
			err := &models.FieldNotFoundError{Field: fieldName}
			m.transition(ctx, session, models.StateFieldNotFound, err.Error())
			m.recordLive(ctx, session, browser)
			return nil, err
		}

		selector, err := m.resolver.Resolve(ctx, browser, spec, m.config.FieldTimeout)
		if err != nil {
			var notFound *models.FieldNotFoundError
			if errors.As(err, &notFound) {
				m.transition(ctx, session, models.StateFieldNotFound, err.Error())
				m.recordLive(ctx, session, browser)
			} else {
				m.transition(ctx, session, models.StateFailed, err.Error())
			}
			return nil, err
		}
		selectors[fieldName] = selector
	}

	if err := browser.Fill(ctx, selectors[models.FieldUsername], creds.Username); err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}
	if err := browser.Fill(ctx, selectors[models.FieldPassword], creds.Password); err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	preSubmitURL, err := browser.CurrentURL(ctx)
	if err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	if err := browser.Click(ctx, selectors[models.FieldSubmit]); err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	m.transition(ctx, session, models.StateAwaitingOutcome, "")

	if err := browser.Settle(ctx, m.config.SettleDelay); err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	snapshot, err := browser.Snapshot(ctx)
	if err != nil {
		m.transition(ctx, session, models.StateFailed, err.Error())
		return nil, err
	}

	outcome := m.detector.Classify(snapshot, preSubmitURL)

	switch outcome.Status {
	case models.StateSuccess:
		m.transition(ctx, session, models.StateSuccess, "")
		cookies, err := m.harvester.Harvest(ctx, browser)
		if err != nil {
			session.LastError = err.Error()
			return nil, err
		}
		return cookies, nil

	case models.StateChallengeBlocked:
		m.transition(ctx, session, models.StateChallengeBlocked, outcome.Message)
		m.record(session, snapshot)
		return nil, nil

	default:
		m.transition(ctx, session, models.StateFailed, outcome.Message)
		m.record(session, snapshot)
		return nil, nil
	}
}

// retryable reports whether a failed attempt may be followed by a variant
// retry. Timeouts and unrecognized pages end the flow immediately: another
// variant re-navigates the same URL, so retrying cannot change the outcome.
// An incomplete harvest means login already succeeded, so retrying would
// re-submit credentials for nothing.
func (m *FlowMachine) retryable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, models.ErrUnknownVariant) {
		return false
	}
	var navTimeout *models.NavigationTimeoutError
	if errors.As(err, &navTimeout) {
		return false
	}
	var incomplete *models.IncompleteCookieSetError
	if errors.As(err, &incomplete) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// nextUntried returns the first variant with field mappings in the profile
// that this session has not yet attempted.
func (m *FlowMachine) nextUntried(session *models.AuthSession) (models.FlowVariant, bool) {
	for _, v := range m.profile.Variants() {
		if !session.Attempted(v) {
			return v, true
		}
	}
	return "", false
}

// transition advances the session state and publishes the change.
func (m *FlowMachine) transition(ctx context.Context, session *models.AuthSession, state models.FlowState, lastError string) {
	session.State = state
	if lastError != "" {
		session.LastError = lastError
	}

	m.logger.Debug().
		Str("session_id", session.ID).
		Str("state", string(state)).
		Str("variant", string(session.Variant)).
		Msg("Flow state changed")

	if err := m.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventFlowStateChanged,
		Payload: map[string]interface{}{
			"session_id": session.ID,
			"state":      string(state),
			"variant":    string(session.Variant),
			"last_error": session.LastError,
		},
	}); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish flow state event")
	}
}

// record hands a snapshot to the diagnostics recorder, if one is wired.
func (m *FlowMachine) record(session *models.AuthSession, snapshot models.PageSnapshot) {
	if m.snapshots == nil {
		return
	}
	m.snapshots.Record(session.ID, session.State, snapshot)
}

// recordLive captures the page as it currently stands for the diagnostics
// recorder. Used on terminals reached without a classification snapshot;
// capture failures are dropped.
func (m *FlowMachine) recordLive(ctx context.Context, session *models.AuthSession, browser interfaces.BrowserSession) {
	if m.snapshots == nil {
		return
	}
	snapshot, err := browser.Snapshot(ctx)
	if err != nil {
		return
	}
	m.record(session, snapshot)
}

// result builds the terminal result handed to callers.
func (m *FlowMachine) result(session *models.AuthSession, cookies models.CookieSet, err error) *models.LoginResult {
	r := &models.LoginResult{
		SessionID:         session.ID,
		Variant:           session.Variant,
		AttemptedVariants: session.AttemptedList(),
		Duration:          time.Since(session.StartedAt),
	}

	if err == nil && session.State == models.StateSuccess {
		r.Status = models.LoginSucceeded
		r.Cookies = cookies
		r.CookieString = cookies.HeaderString()
		return r
	}

	r.Status = models.LoginFailed
	switch {
	case err != nil:
		r.ErrorKind = models.KindOf(err)
		r.Error = err.Error()
	case session.State == models.StateChallengeBlocked:
		r.ErrorKind = models.KindChallengeBlocked
		r.Error = session.LastError
	case session.State == models.StateFieldNotFound:
		r.ErrorKind = models.KindFieldNotFound
		r.Error = session.LastError
	default:
		r.ErrorKind = models.KindFailed
		r.Error = session.LastError
	}

	return r
}

func variantNames(variants []models.FlowVariant) []string {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}
	return names
}
