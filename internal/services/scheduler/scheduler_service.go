package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// refreshTimeout bounds a scheduled refresh run end to end.
const refreshTimeout = 5 * time.Minute

// Service periodically re-runs the automated login so harvested cookies
// never age out between downstream fetches. Refresh goes through the same
// login service gate as manual triggers, so a scheduled run can never
// interleave with one.
type Service struct {
	config common.RefreshConfig
	portal common.PortalConfig
	login  interfaces.LoginService
	logger arbor.ILogger
	cron   *cron.Cron
	cronID cron.EntryID

	mu        sync.Mutex
	started   bool
	isRunning bool
	lastRun   *time.Time
	lastError string
}

// NewService creates the refresh scheduler
func NewService(config common.RefreshConfig, portal common.PortalConfig, loginService interfaces.LoginService, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		portal: portal,
		login:  loginService,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start begins the cron loop. No-op when refresh is disabled; enabling
// refresh without configured credentials is a configuration error.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduled refresh disabled")
		return nil
	}

	if s.portal.Username == "" || s.portal.Password == "" {
		return fmt.Errorf("scheduled refresh is enabled but portal credentials are not configured")
	}

	if err := common.ValidateRefreshSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule: %w", err)
	}

	id, err := s.cron.AddFunc(s.config.Schedule, s.runRefresh)
	if err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	s.cronID = id

	s.cron.Start()
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Msg("Cookie refresh scheduler started")

	return nil
}

// Stop halts the cron loop and waits for a running refresh to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return nil
	}

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Cookie refresh scheduler stopped")
	return nil
}

// Status reports the refresh job state.
func (s *Service) Status() interfaces.RefreshStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := interfaces.RefreshStatus{
		Enabled:   s.config.Enabled,
		Schedule:  s.config.Schedule,
		IsRunning: s.isRunning,
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}

	if s.started {
		entry := s.cron.Entry(s.cronID)
		if !entry.Next.IsZero() {
			next := entry.Next
			status.NextRun = &next
		}
	}

	return status
}

// runRefresh executes one scheduled login pass.
func (s *Service) runRefresh() {
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		now := time.Now().UTC()
		s.mu.Lock()
		s.isRunning = false
		s.lastRun = &now
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	s.logger.Info().Msg("Starting scheduled cookie refresh")

	creds := models.Credentials{
		Username: s.portal.Username,
		Password: s.portal.Password,
	}

	result, err := s.login.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, models.ErrBusy) || errors.Is(err, models.ErrLoginThrottled) {
			s.logger.Info().Err(err).Msg("Scheduled refresh skipped")
		} else {
			s.logger.Error().Err(err).Msg("Scheduled refresh failed to start")
		}
		s.setLastError(err.Error())
		return
	}

	if result.Status != models.LoginSucceeded {
		s.logger.Warn().
			Str("error_kind", result.ErrorKind).
			Str("error", result.Error).
			Msg("Scheduled refresh did not produce a session")
		s.setLastError(result.Error)
		return
	}

	s.setLastError("")
	s.logger.Info().
		Str("session_id", result.SessionID).
		Int("cookie_count", len(result.Cookies)).
		Dur("duration", result.Duration).
		Msg("Scheduled cookie refresh completed")
}

func (s *Service) setLastError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
}
