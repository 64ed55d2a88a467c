package models

import (
	"time"
)

// FlowVariant identifies which login path the portal routed us through.
// Detected from the page reached after the initial navigation, never
// configured statically.
type FlowVariant string

const (
	VariantDirectLogin              FlowVariant = "direct_login"
	VariantSsoRedirect              FlowVariant = "sso_redirect"
	VariantIdentityProviderRedirect FlowVariant = "identity_provider_redirect"
)

// KnownVariants lists every variant the flow engine understands, in the
// order they are attempted when retrying.
func KnownVariants() []FlowVariant {
	return []FlowVariant{
		VariantDirectLogin,
		VariantSsoRedirect,
		VariantIdentityProviderRedirect,
	}
}

// FlowState represents a login flow's position in its lifecycle.
type FlowState string

const (
	StateStart                 FlowState = "start"
	StateNavigatingToLogin     FlowState = "navigating_to_login"
	StateVariantDetected       FlowState = "variant_detected"
	StateSubmittingCredentials FlowState = "submitting_credentials"
	StateAwaitingOutcome       FlowState = "awaiting_outcome"
	StateSuccess               FlowState = "success"
	StateChallengeBlocked      FlowState = "challenge_blocked"
	StateFieldNotFound         FlowState = "field_not_found"
	StateFailed                FlowState = "failed"
)

// IsTerminal reports whether the state ends the flow.
func (s FlowState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateChallengeBlocked, StateFieldNotFound, StateFailed:
		return true
	}
	return false
}

// AuthSession tracks a single login flow execution. Created when a flow
// starts, mutated only by the flow engine, discarded once the terminal
// result has been extracted.
type AuthSession struct {
	ID                string                   `json:"id"`
	Variant           FlowVariant              `json:"variant,omitempty"`
	State             FlowState                `json:"state"`
	StartedAt         time.Time                `json:"started_at"`
	AttemptedVariants map[FlowVariant]struct{} `json:"-"`
	LastError         string                   `json:"last_error,omitempty"`
}

// NewAuthSession creates a session in the start state.
func NewAuthSession(id string) *AuthSession {
	return &AuthSession{
		ID:                id,
		State:             StateStart,
		StartedAt:         time.Now(),
		AttemptedVariants: make(map[FlowVariant]struct{}),
	}
}

// MarkAttempted records that a variant has been tried. A variant is never
// retried within the same session.
func (s *AuthSession) MarkAttempted(v FlowVariant) {
	if s.AttemptedVariants == nil {
		s.AttemptedVariants = make(map[FlowVariant]struct{})
	}
	s.AttemptedVariants[v] = struct{}{}
}

// Attempted reports whether a variant was already tried in this session.
func (s *AuthSession) Attempted(v FlowVariant) bool {
	_, ok := s.AttemptedVariants[v]
	return ok
}

// AttemptedList returns the attempted variants in canonical order.
func (s *AuthSession) AttemptedList() []FlowVariant {
	out := make([]FlowVariant, 0, len(s.AttemptedVariants))
	for _, v := range KnownVariants() {
		if s.Attempted(v) {
			out = append(out, v)
		}
	}
	return out
}

// FieldSpec maps a logical form field to an ordered list of candidate
// selector expressions. Candidates are tried in declared order; the
// resolution timeout bounds the whole field, not each candidate.
type FieldSpec struct {
	Name       string   `json:"name" yaml:"name"`
	Candidates []string `json:"candidates" yaml:"candidates"`
}

// Logical field names resolved during credential submission.
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldSubmit   = "submit"
)

// PageSnapshot captures the browser state inspected after a submission
// attempt: the current URL plus the serialized document.
type PageSnapshot struct {
	URL  string
	HTML string
}

// Outcome is the classification of a page snapshot after submit.
type Outcome struct {
	Status  FlowState // StateSuccess, StateChallengeBlocked or StateFailed
	Message string
}

// LoginStatus is the externally visible result category of a flow.
type LoginStatus string

const (
	LoginSucceeded LoginStatus = "success"
	LoginFailed    LoginStatus = "failed"
)

// LoginResult is handed to callers when a flow reaches a terminal state.
// PersistWarning is set when the harvested cookies could not be saved; the
// in-memory result is still valid in that case.
type LoginResult struct {
	Status            LoginStatus   `json:"status"`
	SessionID         string        `json:"session_id"`
	Variant           FlowVariant   `json:"variant,omitempty"`
	AttemptedVariants []FlowVariant `json:"attempted_variants,omitempty"`
	Cookies           CookieSet     `json:"cookies,omitempty"`
	CookieString      string        `json:"cookie_string,omitempty"`
	ErrorKind         string        `json:"error_kind,omitempty"`
	Error             string        `json:"error,omitempty"`
	PersistWarning    string        `json:"persist_warning,omitempty"`
	Duration          time.Duration `json:"-"`
}
