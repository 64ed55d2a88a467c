package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/clavis/internal/models"
)

// DefaultProfile returns the built-in PSEG Long Island portal definition.
// Selectors, URLs and cookie names are profile data so portal markup drift
// is fixed by editing a profile file, not code.
func DefaultProfile() *models.PortalProfile {
	return &models.PortalProfile{
		Name:              "psegli",
		LoginURL:          "https://myaccount.nj.pseg.com/user/login",
		IdentityHost:      "id.myaccount.nj.pseg.com",
		FailurePathMarker: "id.myaccount.nj.pseg.com/oauth2",
		DashboardURL:      "https://myaccount.nj.pseg.com/dashboards",
		HandoffURLs: []string{
			// Propagates the session to the usage-data host; the required
			// MM_SID cookie is minted there, not on the account host.
			"https://myaccount.nj.pseg.com/LI/Header/RedirectMDMWidget",
			"https://mysmartenergy.nj.pseg.com/Dashboard",
		},
		CookieDomains: []string{
			".nj.pseg.com",
			".myaccount.nj.pseg.com",
			".mysmartenergy.nj.pseg.com",
		},
		RequiredCookies: []string{"MM_SID", "__RequestVerificationToken"},
		OptionalCookies: []string{"ASP.NET_SessionId"},
		Fields: map[models.FlowVariant][]models.FieldSpec{
			models.VariantDirectLogin: {
				{Name: models.FieldUsername, Candidates: []string{
					`input[name="username"]`,
					`input[type="email"]`,
					`input[type="text"]`,
				}},
				{Name: models.FieldPassword, Candidates: []string{
					`input[name="password"]`,
					`input[type="password"]`,
				}},
				{Name: models.FieldSubmit, Candidates: []string{
					`button[type="submit"]`,
					`input[type="submit"]`,
				}},
			},
			models.VariantSsoRedirect: {
				{Name: models.FieldUsername, Candidates: []string{
					`input#username`,
					`input[name="username"]`,
					`input[type="email"]`,
				}},
				{Name: models.FieldPassword, Candidates: []string{
					`input#password`,
					`input[name="password"]`,
					`input[type="password"]`,
				}},
				{Name: models.FieldSubmit, Candidates: []string{
					`button[type="submit"]`,
					`input[type="submit"]`,
				}},
			},
			models.VariantIdentityProviderRedirect: {
				{Name: models.FieldUsername, Candidates: []string{
					`input#signInName`,
					`input[name="username"]`,
					`input[type="email"]`,
				}},
				{Name: models.FieldPassword, Candidates: []string{
					`input#password`,
					`input[name="password"]`,
					`input[type="password"]`,
				}},
				{Name: models.FieldSubmit, Candidates: []string{
					`button#next`,
					`button[type="submit"]`,
					`input[type="submit"]`,
				}},
			},
		},
		VariantRules: []models.VariantRule{
			// Most specific first: the identity-provider host, then an SSO
			// intermediary path, then the plain login form.
			{Variant: models.VariantIdentityProviderRedirect, URLContains: "id.myaccount.nj.pseg.com"},
			{Variant: models.VariantSsoRedirect, URLContains: "/oauth2/"},
			{Variant: models.VariantDirectLogin, URLContains: "/user/login", SelectorPresent: `input[type="password"]`},
		},
		ChallengeSelectors: []string{
			`iframe[src*="recaptcha"]`,
			`.g-recaptcha`,
			`div[class*="captcha"]`,
		},
		ChallengeTextPatterns: []string{
			"verify you are human",
			"i'm not a robot",
			"recaptcha",
		},
		ErrorTextPatterns: []string{
			"invalid username or password",
			"unable to process your request",
			"an error occurred",
		},
		CredentialSelectors: []string{
			`input[name="username"]`,
			`input#signInName`,
			`input[type="password"]`,
		},
	}
}

// LoadProfile returns the built-in profile, overlaid with the YAML file at
// path when one is configured. The merged profile is validated before use.
func LoadProfile(path string) (*models.PortalProfile, error) {
	profile := DefaultProfile()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read portal profile %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("failed to parse portal profile %s: %w", path, err)
		}
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("portal profile invalid: %w", err)
	}

	return profile, nil
}
