package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unknown variant", ErrUnknownVariant, KindUnknownVariant},
		{"wrapped unknown variant", fmt.Errorf("detect: %w", ErrUnknownVariant), KindUnknownVariant},
		{"challenge", ErrChallengeBlocked, KindChallengeBlocked},
		{"busy", ErrBusy, KindBusy},
		{"throttled maps to busy", ErrLoginThrottled, KindBusy},
		{"field not found", &FieldNotFoundError{Field: "username"}, KindFieldNotFound},
		{"incomplete cookies", &IncompleteCookieSetError{Missing: []string{"MM_SID"}}, KindIncompleteCookieSet},
		{"navigation timeout", &NavigationTimeoutError{Step: "navigate", Err: errors.New("deadline")}, KindNavigationTimeout},
		{"persistence", &PersistenceError{Op: "save", Err: errors.New("disk")}, KindPersistence},
		{"anything else", errors.New("boom"), KindFailed},
		{"wrapped typed error", fmt.Errorf("submit: %w", &FieldNotFoundError{Field: "submit"}), KindFieldNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldNotFoundErrorMessage(t *testing.T) {
	err := &FieldNotFoundError{
		Field:      "username",
		Candidates: []string{"#signin-username", "input[name='username']"},
	}

	msg := err.Error()
	if !strings.Contains(msg, "username") {
		t.Errorf("message should name the field: %q", msg)
	}
	if !strings.Contains(msg, "#signin-username") || !strings.Contains(msg, "input[name='username']") {
		t.Errorf("message should list every candidate tried: %q", msg)
	}
}

func TestNavigationTimeoutErrorUnwrap(t *testing.T) {
	inner := errors.New("context deadline exceeded")
	err := &NavigationTimeoutError{Step: "navigate to login", URL: "https://example.com", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("NavigationTimeoutError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "https://example.com") {
		t.Errorf("message should carry the URL: %q", err.Error())
	}
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	inner := errors.New("value log write")
	err := &PersistenceError{Op: "save", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("PersistenceError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "save") {
		t.Errorf("message should carry the operation: %q", err.Error())
	}
}
