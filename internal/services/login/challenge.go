package login

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/models"
)

// ChallengeDetector classifies the page reached after a credential
// submission. Rule order is load-bearing: challenge markers are checked
// before generic error text because a challenge interstitial usually
// carries generic error copy as well.
type ChallengeDetector struct {
	profile *models.PortalProfile
	logger  arbor.ILogger
}

// NewChallengeDetector creates a challenge detector for the given profile
func NewChallengeDetector(profile *models.PortalProfile, logger arbor.ILogger) *ChallengeDetector {
	return &ChallengeDetector{
		profile: profile,
		logger:  logger,
	}
}

// Classify decides whether a submission succeeded, was blocked by a
// bot-detection challenge, or failed.
func (d *ChallengeDetector) Classify(snapshot models.PageSnapshot, preSubmitURL string) models.Outcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot.HTML))
	if err != nil {
		d.logger.Warn().Err(err).Str("url", snapshot.URL).Msg("Failed to parse page snapshot")
		return models.Outcome{
			Status:  models.StateFailed,
			Message: fmt.Sprintf("unparseable page snapshot: %v", err),
		}
	}

	pageText := strings.ToLower(doc.Text())

	// Left the login page, not on the provider's rejection path, and no
	// credential fields remain
	if common.URLChanged(preSubmitURL, snapshot.URL) &&
		!d.onFailurePath(snapshot.URL) &&
		!d.credentialFieldsPresent(doc) {
		d.logger.Debug().
			Str("pre_submit_url", preSubmitURL).
			Str("url", snapshot.URL).
			Msg("Submission classified as success")
		return models.Outcome{Status: models.StateSuccess}
	}

	if marker, found := d.challengeMarker(doc, pageText); found {
		d.logger.Warn().
			Str("marker", marker).
			Str("url", snapshot.URL).
			Msg("Bot-detection challenge present")
		return models.Outcome{
			Status:  models.StateChallengeBlocked,
			Message: fmt.Sprintf("challenge present: %s", marker),
		}
	}

	if d.onFailurePath(snapshot.URL) {
		return models.Outcome{
			Status:  models.StateFailed,
			Message: "identity provider rejected the login",
		}
	}

	if message, found := d.errorText(pageText); found {
		return models.Outcome{
			Status:  models.StateFailed,
			Message: message,
		}
	}

	return models.Outcome{
		Status:  models.StateFailed,
		Message: "no state change after submission",
	}
}

// onFailurePath reports whether the URL sits on the identity provider's
// known rejection path.
func (d *ChallengeDetector) onFailurePath(url string) bool {
	return d.profile.FailurePathMarker != "" && common.URLContainsMarker(url, d.profile.FailurePathMarker)
}

// credentialFieldsPresent reports whether any credential-entry field is
// still in the document.
func (d *ChallengeDetector) credentialFieldsPresent(doc *goquery.Document) bool {
	for _, selector := range d.profile.CredentialSelectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

// challengeMarker returns the first challenge widget selector or text
// pattern found in the page.
func (d *ChallengeDetector) challengeMarker(doc *goquery.Document, pageText string) (string, bool) {
	for _, selector := range d.profile.ChallengeSelectors {
		if doc.Find(selector).Length() > 0 {
			return selector, true
		}
	}
	for _, pattern := range d.profile.ChallengeTextPatterns {
		if strings.Contains(pageText, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}

// errorText returns the page text around the first matching error pattern.
func (d *ChallengeDetector) errorText(pageText string) (string, bool) {
	for _, pattern := range d.profile.ErrorTextPatterns {
		lowered := strings.ToLower(pattern)
		if strings.Contains(pageText, lowered) {
			return fmt.Sprintf("portal reported: %s", captureAround(pageText, lowered)), true
		}
	}
	return "", false
}

// captureAround extracts the words surrounding the matched pattern so the
// failure message carries the portal's own wording.
func captureAround(text, pattern string) string {
	idx := strings.Index(text, pattern)
	if idx < 0 {
		return pattern
	}

	before := strings.Fields(text[:idx])
	if len(before) > 4 {
		before = before[len(before)-4:]
	}
	after := strings.Fields(text[idx:])
	if len(after) > 24 {
		after = after[:24]
	}

	return strings.Join(append(before, after...), " ")
}
