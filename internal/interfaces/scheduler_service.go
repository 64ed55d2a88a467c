package interfaces

import "time"

// RefreshStatus describes the scheduled-refresh job.
type RefreshStatus struct {
	Enabled   bool       `json:"enabled"`
	Schedule  string     `json:"schedule,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService runs the periodic cookie-refresh login.
type SchedulerService interface {
	// Start begins the cron loop. No-op when refresh is not configured.
	Start() error

	// Stop halts the cron loop and waits for a running refresh to finish.
	Stop() error

	// Status reports the refresh job state.
	Status() RefreshStatus
}
