package models

import (
	"errors"
	"fmt"
	"strings"
)

// Flow errors
var (
	ErrUnknownVariant   = errors.New("login page variant not recognized")
	ErrChallengeBlocked = errors.New("blocked by bot-detection challenge")
	ErrBusy             = errors.New("a login flow is already in progress")
	ErrLoginThrottled   = errors.New("automated login attempted too soon after the previous one")
)

// Storage errors
var (
	ErrNoCookieRecord = errors.New("no cookie record saved yet")
)

// Error kinds surfaced to callers in structured results.
const (
	KindUnknownVariant      = "unknown_variant"
	KindFieldNotFound       = "field_not_found"
	KindChallengeBlocked    = "challenge_blocked"
	KindIncompleteCookieSet = "incomplete_cookie_set"
	KindNavigationTimeout   = "navigation_timeout"
	KindPersistence         = "persistence"
	KindBusy                = "busy"
	KindFailed              = "failed"
)

// FieldNotFoundError reports that no candidate selector for a logical
// field became visible before the field's resolution deadline. Candidates
// carries the full list attempted, for diagnosing portal markup drift.
type FieldNotFoundError struct {
	Field      string
	Candidates []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found, tried selectors: %s", e.Field, strings.Join(e.Candidates, ", "))
}

// IncompleteCookieSetError reports a harvested or submitted cookie set
// missing one or more required cookie names.
type IncompleteCookieSetError struct {
	Missing []string
}

func (e *IncompleteCookieSetError) Error() string {
	return fmt.Sprintf("cookie set incomplete, missing: %s", strings.Join(e.Missing, ", "))
}

// NavigationTimeoutError reports a bounded navigation or wait step that
// expired before its condition was met.
type NavigationTimeoutError struct {
	Step string
	URL  string
	Err  error
}

func (e *NavigationTimeoutError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s timed out at %s: %v", e.Step, e.URL, e.Err)
	}
	return fmt.Sprintf("%s timed out: %v", e.Step, e.Err)
}

func (e *NavigationTimeoutError) Unwrap() error { return e.Err }

// PersistenceError wraps a cookie-store failure. Fatal to the save or load
// call, but never voids an in-flight flow's in-memory result.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cookie store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// KindOf maps an error to its structured result kind.
func KindOf(err error) string {
	var fnf *FieldNotFoundError
	var ics *IncompleteCookieSetError
	var nav *NavigationTimeoutError
	var per *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownVariant):
		return KindUnknownVariant
	case errors.Is(err, ErrChallengeBlocked):
		return KindChallengeBlocked
	case errors.Is(err, ErrBusy), errors.Is(err, ErrLoginThrottled):
		return KindBusy
	case errors.As(err, &fnf):
		return KindFieldNotFound
	case errors.As(err, &ics):
		return KindIncompleteCookieSet
	case errors.As(err, &nav):
		return KindNavigationTimeout
	case errors.As(err, &per):
		return KindPersistence
	default:
		return KindFailed
	}
}
