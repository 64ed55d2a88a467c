package login

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// Service gates flow execution so only one automated login runs at a time
// and paces triggers against the portal. A trigger while a flow is in
// flight is rejected with the busy error, never queued or interleaved:
// two flows sharing the portal's session state corrupt each other.
type Service struct {
	machine *FlowMachine
	store   interfaces.CookieStorage
	events  interfaces.EventService
	limiter *rate.Limiter
	logger  arbor.ILogger

	mu      sync.Mutex
	active  bool
	session *models.AuthSession
	lastRun time.Time
}

// NewService creates the login service. minInterval paces automated
// triggers; zero disables pacing.
func NewService(
	machine *FlowMachine,
	store interfaces.CookieStorage,
	events interfaces.EventService,
	minInterval time.Duration,
	logger arbor.ILogger,
) *Service {
	var limiter *rate.Limiter
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	return &Service{
		machine: machine,
		store:   store,
		events:  events,
		limiter: limiter,
		logger:  logger,
	}
}

// Login runs one complete flow and returns its terminal result. On success
// the harvested cookies are persisted; a persistence failure is reported in
// the result's PersistWarning, the in-memory cookies remain valid.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	if !creds.Valid() {
		return nil, fmt.Errorf("username and password are required")
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		s.logger.Warn().Msg("Login trigger rejected, a flow is already in progress")
		return nil, models.ErrBusy
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.mu.Unlock()
		s.logger.Warn().Msg("Login trigger rejected by pacing limit")
		return nil, models.ErrLoginThrottled
	}

	session := models.NewAuthSession(common.NewSessionID())
	s.active = true
	s.session = snapshotOf(session)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = false
		s.lastRun = time.Now()
		s.mu.Unlock()
	}()

	s.publish(ctx, interfaces.EventLoginStarted, map[string]interface{}{
		"session_id": session.ID,
	})

	result := s.machine.Run(ctx, session, creds)

	if result.Status == models.LoginSucceeded {
		record := models.NewCookieRecord(result.Cookies, models.SourceAutomated)
		if err := s.store.Save(ctx, record); err != nil {
			result.PersistWarning = err.Error()
			s.logger.Warn().Err(err).Msg("Harvested cookies could not be persisted")
		} else {
			s.publish(ctx, interfaces.EventCookiesUpdated, map[string]interface{}{
				"source":   string(models.SourceAutomated),
				"saved_at": record.SavedAt.Format(time.RFC3339),
				"names":    record.Cookies.Names(),
			})
		}
	}

	s.mu.Lock()
	s.session = snapshotOf(session)
	s.mu.Unlock()

	s.publish(ctx, interfaces.EventLoginFinished, map[string]interface{}{
		"session_id": result.SessionID,
		"status":     string(result.Status),
		"error_kind": result.ErrorKind,
		"duration":   result.Duration.String(),
	})

	return result, nil
}

// Status reports whether a flow is active plus the most recent session
// snapshot. Live transition detail goes out on the event stream; the
// snapshot here is only updated at flow boundaries.
func (s *Service) Status() interfaces.FlowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := interfaces.FlowStatus{
		Active:  s.active,
		Session: s.session,
	}
	if !s.lastRun.IsZero() {
		status.LastRunAt = s.lastRun.UTC().Format(time.RFC3339)
	}
	return status
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}

// snapshotOf copies the session for race-free status reads while the
// machine keeps mutating the original. The attempts map stays with the
// machine; status readers only see the serialized fields.
func snapshotOf(session *models.AuthSession) *models.AuthSession {
	copied := *session
	copied.AttemptedVariants = nil
	return &copied
}
