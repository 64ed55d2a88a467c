package models

import (
	"testing"
)

func TestFlowStateIsTerminal(t *testing.T) {
	tests := []struct {
		state FlowState
		want  bool
	}{
		{StateStart, false},
		{StateNavigatingToLogin, false},
		{StateVariantDetected, false},
		{StateSubmittingCredentials, false},
		{StateAwaitingOutcome, false},
		{StateSuccess, true},
		{StateChallengeBlocked, true},
		{StateFieldNotFound, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthSessionAttemptTracking(t *testing.T) {
	session := NewAuthSession("test-id")

	if session.State != StateStart {
		t.Errorf("new session state = %q, want %q", session.State, StateStart)
	}
	if session.Attempted(VariantDirectLogin) {
		t.Error("fresh session should have no attempted variants")
	}

	session.MarkAttempted(VariantSsoRedirect)
	session.MarkAttempted(VariantDirectLogin)
	session.MarkAttempted(VariantDirectLogin) // idempotent

	if !session.Attempted(VariantDirectLogin) || !session.Attempted(VariantSsoRedirect) {
		t.Error("marked variants should report attempted")
	}
	if session.Attempted(VariantIdentityProviderRedirect) {
		t.Error("unmarked variant should not report attempted")
	}

	// Canonical order regardless of mark order
	list := session.AttemptedList()
	if len(list) != 2 {
		t.Fatalf("AttemptedList() = %v, want 2 entries", list)
	}
	if list[0] != VariantDirectLogin || list[1] != VariantSsoRedirect {
		t.Errorf("AttemptedList() order = %v", list)
	}
}

func TestCredentialsMasking(t *testing.T) {
	creds := Credentials{Username: "alice@example.com", Password: "hunter2"}

	str := creds.String()
	if str != "alice@example.com:********" {
		t.Errorf("String() = %q", str)
	}

	if !creds.Valid() {
		t.Error("complete credentials should be valid")
	}
	if (Credentials{Username: "alice@example.com"}).Valid() {
		t.Error("missing password should be invalid")
	}
	if (Credentials{Password: "hunter2"}).Valid() {
		t.Error("missing username should be invalid")
	}
}
