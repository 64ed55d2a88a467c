package common

import (
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/clavis/internal/models"
)

// Helper to create a time easily
func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}

func newTestRecord(t *testing.T, savedAt string, cookies models.CookieSet) *models.CookieRecord {
	t.Helper()
	return &models.CookieRecord{
		Cookies: cookies,
		Source:  models.SourceAutomated,
		SavedAt: mustTime(t, savedAt),
	}
}

func TestCheckCookieStaleness_NilRecord(t *testing.T) {
	now := mustTime(t, "2025-06-01T12:00:00Z")

	result := CheckCookieStaleness(nil, 6*time.Hour, now)

	if !result.IsStale {
		t.Error("expected nil record to be stale")
	}
	if result.Reason != "no cookie record saved" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestCheckCookieStaleness_AgeBound(t *testing.T) {
	sessionCookies := models.CookieSet{
		"MM_SID": {Name: "MM_SID", Value: "abc"},
	}

	tests := []struct {
		name      string
		savedAt   string
		now       string
		maxAge    time.Duration
		wantStale bool
	}{
		{"fresh record", "2025-06-01T10:00:00Z", "2025-06-01T12:00:00Z", 6 * time.Hour, false},
		{"just inside max age", "2025-06-01T06:00:01Z", "2025-06-01T12:00:00Z", 6 * time.Hour, false},
		{"exactly max age", "2025-06-01T06:00:00Z", "2025-06-01T12:00:00Z", 6 * time.Hour, true},
		{"well past max age", "2025-05-30T12:00:00Z", "2025-06-01T12:00:00Z", 6 * time.Hour, true},
		{"zero max age never expires by age", "2025-05-01T12:00:00Z", "2025-06-01T12:00:00Z", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := newTestRecord(t, tt.savedAt, sessionCookies)

			result := CheckCookieStaleness(record, tt.maxAge, mustTime(t, tt.now))

			if result.IsStale != tt.wantStale {
				t.Errorf("IsStale = %v, want %v (reason: %s)", result.IsStale, tt.wantStale, result.Reason)
			}
		})
	}
}

func TestCheckCookieStaleness_CookieExpiry(t *testing.T) {
	expiry := mustTime(t, "2025-06-01T11:00:00Z")
	cookies := models.CookieSet{
		"MM_SID":                     {Name: "MM_SID", Value: "abc"},
		"__RequestVerificationToken": {Name: "__RequestVerificationToken", Value: "tok", ExpiresAt: &expiry},
	}

	t.Run("expired cookie makes fresh record stale", func(t *testing.T) {
		record := newTestRecord(t, "2025-06-01T10:30:00Z", cookies)
		now := mustTime(t, "2025-06-01T11:30:00Z")

		result := CheckCookieStaleness(record, 6*time.Hour, now)

		if !result.IsStale {
			t.Fatalf("expected stale, got fresh: %s", result.Reason)
		}
		if !strings.Contains(result.Reason, "__RequestVerificationToken") {
			t.Errorf("reason should name the expired cookie, got %q", result.Reason)
		}
	})

	t.Run("unexpired cookie bounds next check", func(t *testing.T) {
		record := newTestRecord(t, "2025-06-01T10:30:00Z", cookies)
		now := mustTime(t, "2025-06-01T10:45:00Z")

		result := CheckCookieStaleness(record, 6*time.Hour, now)

		if result.IsStale {
			t.Fatalf("expected fresh, got stale: %s", result.Reason)
		}
		// Expiry at 11:00 arrives before savedAt+6h, so it wins.
		if !result.NextCheckTime.Equal(expiry) {
			t.Errorf("NextCheckTime = %s, want %s", result.NextCheckTime, expiry)
		}
	})

	t.Run("max age bounds next check when expiry is later", func(t *testing.T) {
		farExpiry := mustTime(t, "2025-06-02T11:00:00Z")
		farCookies := models.CookieSet{
			"MM_SID": {Name: "MM_SID", Value: "abc", ExpiresAt: &farExpiry},
		}
		record := newTestRecord(t, "2025-06-01T10:00:00Z", farCookies)
		now := mustTime(t, "2025-06-01T10:45:00Z")

		result := CheckCookieStaleness(record, 6*time.Hour, now)

		if result.IsStale {
			t.Fatalf("expected fresh, got stale: %s", result.Reason)
		}
		want := mustTime(t, "2025-06-01T16:00:00Z")
		if !result.NextCheckTime.Equal(want) {
			t.Errorf("NextCheckTime = %s, want %s", result.NextCheckTime, want)
		}
	})
}

func TestCheckCookieStaleness_NoBounds(t *testing.T) {
	record := newTestRecord(t, "2025-01-01T00:00:00Z", models.CookieSet{
		"MM_SID": {Name: "MM_SID", Value: "abc"},
	})
	now := mustTime(t, "2025-06-01T12:00:00Z")

	result := CheckCookieStaleness(record, 0, now)

	if result.IsStale {
		t.Fatalf("expected fresh with no bounds, got stale: %s", result.Reason)
	}
	if result.NextCheckTime.Before(now) {
		t.Errorf("NextCheckTime should be in the future, got %s", result.NextCheckTime)
	}
}
