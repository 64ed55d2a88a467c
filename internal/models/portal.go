package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// VariantRule classifies the page reached after the initial navigation.
// Rules are evaluated in declared order; the first match wins. URLContains
// is matched against the current URL, SelectorPresent against the DOM.
// Either may be empty; a rule with both set requires both to match.
type VariantRule struct {
	Variant         FlowVariant `json:"variant" yaml:"variant" validate:"required"`
	URLContains     string      `json:"url_contains,omitempty" yaml:"url_contains,omitempty"`
	SelectorPresent string      `json:"selector_present,omitempty" yaml:"selector_present,omitempty"`
}

// PortalProfile is the complete description of the target portal: URLs,
// per-variant field selectors, challenge markers, and the cookie contract.
// All portal specifics live here as data so markup drift is a profile
// edit, not a code change.
type PortalProfile struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// LoginURL is navigated to directly. The portal's marketing site is
	// never visited; routing through it degrades reliability.
	LoginURL string `json:"login_url" yaml:"login_url" validate:"required,url"`

	// IdentityHost is the identity-provider host credentials may be
	// redirected to. FailurePathMarker is a URL fragment that, when still
	// present after submit, indicates the provider rejected the login.
	IdentityHost      string `json:"identity_host" yaml:"identity_host"`
	FailurePathMarker string `json:"failure_path_marker" yaml:"failure_path_marker"`

	// DashboardURL is where a successful login lands. HandoffURLs are
	// visited after login to propagate the session to cooperating hosts.
	DashboardURL string   `json:"dashboard_url" yaml:"dashboard_url" validate:"omitempty,url"`
	HandoffURLs  []string `json:"handoff_urls,omitempty" yaml:"handoff_urls,omitempty"`

	// CookieDomains is the fixed set of domains harvested after login.
	// RequiredCookies must all be present non-empty for a harvested set to
	// be complete. OptionalCookies are captured when present.
	CookieDomains   []string `json:"cookie_domains" yaml:"cookie_domains" validate:"required,min=1"`
	RequiredCookies []string `json:"required_cookies" yaml:"required_cookies" validate:"required,min=1"`
	OptionalCookies []string `json:"optional_cookies,omitempty" yaml:"optional_cookies,omitempty"`

	// Fields maps variant name to the ordered FieldSpecs resolved while
	// submitting credentials on that variant.
	Fields map[FlowVariant][]FieldSpec `json:"fields" yaml:"fields" validate:"required,min=1"`

	// VariantRules drive flow-variant detection, evaluated in order.
	VariantRules []VariantRule `json:"variant_rules" yaml:"variant_rules" validate:"required,min=1,dive"`

	// ChallengeSelectors match bot-detection widgets in the DOM;
	// ChallengeTextPatterns match challenge wording in page text. Checked
	// before ErrorTextPatterns, since challenge pages often also carry
	// generic error copy.
	ChallengeSelectors    []string `json:"challenge_selectors,omitempty" yaml:"challenge_selectors,omitempty"`
	ChallengeTextPatterns []string `json:"challenge_text_patterns,omitempty" yaml:"challenge_text_patterns,omitempty"`
	ErrorTextPatterns     []string `json:"error_text_patterns,omitempty" yaml:"error_text_patterns,omitempty"`

	// CredentialSelectors identify credential-entry fields when deciding
	// whether a post-submit page still shows the login form.
	CredentialSelectors []string `json:"credential_selectors,omitempty" yaml:"credential_selectors,omitempty"`
}

// Validate checks the profile using struct tags plus the structural rules
// tags cannot express.
func (p *PortalProfile) Validate() error {
	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		return err
	}

	for variant, specs := range p.Fields {
		if !IsKnownVariant(variant) {
			return fmt.Errorf("fields declared for unknown variant %q", variant)
		}
		if len(specs) == 0 {
			return fmt.Errorf("variant %q has no field specs", variant)
		}
		for _, spec := range specs {
			if spec.Name == "" {
				return fmt.Errorf("variant %q has a field spec with no name", variant)
			}
			if len(spec.Candidates) == 0 {
				return fmt.Errorf("field %q on variant %q has no candidate selectors", spec.Name, variant)
			}
		}
	}

	for i, rule := range p.VariantRules {
		if !IsKnownVariant(rule.Variant) {
			return fmt.Errorf("variant rule %d names unknown variant %q", i, rule.Variant)
		}
		if rule.URLContains == "" && rule.SelectorPresent == "" {
			return fmt.Errorf("variant rule %d has no match condition", i)
		}
		if _, ok := p.Fields[rule.Variant]; !ok {
			return fmt.Errorf("variant rule %d names variant %q with no field specs", i, rule.Variant)
		}
	}

	return nil
}

// FieldsFor returns the FieldSpecs for a variant.
func (p *PortalProfile) FieldsFor(variant FlowVariant) []FieldSpec {
	return p.Fields[variant]
}

// FieldFor returns the named FieldSpec for a variant.
func (p *PortalProfile) FieldFor(variant FlowVariant, name string) (FieldSpec, bool) {
	for _, spec := range p.Fields[variant] {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Variants returns the variants the profile declares rules for, in rule
// order, deduplicated.
func (p *PortalProfile) Variants() []FlowVariant {
	seen := make(map[FlowVariant]struct{}, len(p.VariantRules))
	var out []FlowVariant
	for _, rule := range p.VariantRules {
		if _, ok := seen[rule.Variant]; ok {
			continue
		}
		seen[rule.Variant] = struct{}{}
		out = append(out, rule.Variant)
	}
	return out
}

// IsKnownVariant checks membership in the known variant set.
func IsKnownVariant(v FlowVariant) bool {
	for _, known := range KnownVariants() {
		if v == known {
			return true
		}
	}
	return false
}
