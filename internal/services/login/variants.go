package login

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/models"
)

// DetectVariant classifies which login path the portal routed the initial
// navigation through by evaluating the profile's rules in declared order.
// The first rule whose conditions all hold wins; a page matching no rule is
// reported as an unknown variant rather than guessed at.
func DetectVariant(profile *models.PortalProfile, snapshot models.PageSnapshot) (models.FlowVariant, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot.HTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse page for variant detection: %w", err)
	}

	for _, rule := range profile.VariantRules {
		if rule.URLContains != "" && !common.URLContainsMarker(snapshot.URL, rule.URLContains) {
			continue
		}
		if rule.SelectorPresent != "" && doc.Find(rule.SelectorPresent).Length() == 0 {
			continue
		}
		return rule.Variant, nil
	}

	return "", fmt.Errorf("%w: %s", models.ErrUnknownVariant, snapshot.URL)
}
