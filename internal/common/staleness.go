// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"

	"github.com/ternarybob/clavis/internal/models"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the stored cookie record needs a fresh login.
	IsStale bool
	// NextCheckTime is when the record should be re-evaluated if it is not
	// currently stale. Useful for scheduling the next check.
	NextCheckTime time.Time
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// CheckCookieStaleness determines if a stored cookie record is still usable.
// A record goes stale when any harvested cookie has passed its expiry, or
// when the record's age exceeds maxAge. Session cookies carry no expiry on
// the wire, so maxAge is the only bound on a set of session cookies.
//
// Returns a StalenessResult indicating whether the record needs refresh.
func CheckCookieStaleness(record *models.CookieRecord, maxAge time.Duration, now time.Time) StalenessResult {
	// No record at all: always stale
	if record == nil {
		return StalenessResult{
			IsStale:       true,
			NextCheckTime: now,
			Reason:        "no cookie record saved",
		}
	}

	now = now.UTC()
	savedAt := record.SavedAt.UTC()

	// A cookie that has passed its expiry makes the whole record unusable,
	// regardless of how recently it was saved.
	expiryName, earliestExpiry := record.Cookies.EarliestExpiry()
	if earliestExpiry != nil && !earliestExpiry.After(now) {
		return StalenessResult{
			IsStale:       true,
			NextCheckTime: now,
			Reason: fmt.Sprintf(
				"cookie %s expired at %s",
				expiryName,
				earliestExpiry.UTC().Format(time.RFC3339),
			),
		}
	}

	// Age bound: the portal invalidates server-side sessions well before
	// session cookies would naturally disappear, so records older than
	// maxAge are treated as stale even when no cookie has an expiry.
	age := now.Sub(savedAt)
	if maxAge > 0 && age >= maxAge {
		return StalenessResult{
			IsStale:       true,
			NextCheckTime: now,
			Reason: fmt.Sprintf(
				"record saved %s ago exceeds max age %s",
				age.Round(time.Second),
				maxAge,
			),
		}
	}

	// Not stale - next check is whichever bound arrives first
	nextCheck := time.Time{}
	if maxAge > 0 {
		nextCheck = savedAt.Add(maxAge)
	}
	if earliestExpiry != nil && (nextCheck.IsZero() || earliestExpiry.UTC().Before(nextCheck)) {
		nextCheck = earliestExpiry.UTC()
	}
	if nextCheck.IsZero() {
		// No expiry and no age bound configured: nothing to schedule
		return StalenessResult{
			IsStale:       false,
			NextCheckTime: now.Add(24 * time.Hour),
			Reason:        "record has no expiring cookies and no max age configured",
		}
	}

	return StalenessResult{
		IsStale:       false,
		NextCheckTime: nextCheck,
		Reason: fmt.Sprintf(
			"record saved %s ago, usable until %s",
			age.Round(time.Second),
			nextCheck.Format(time.RFC3339),
		),
	}
}
