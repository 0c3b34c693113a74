package platform

import (
	"fmt"
	"net/url"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/controls"
)

// Willhaben covers www.willhaben.at rental listings. Commercial
// listings render an email form with suggestion checkboxes; private
// listings render a messaging form instead, so both variants are
// declared and the one present on the page wins.
func Willhaben() *Site {
	return &Site{
		Name:          "willhaben",
		Hosts:         []string{"www.willhaben.at", "willhaben.at"},
		RequiresLogin: true,
		Forms: []FormSpec{
			{
				Name:     "email",
				Selector: `form[data-testid="ad-contact-form-email"]`,
				Fields: []FieldSpec{
					{Profile: "message", Selector: "#mailContent"},
				},
				Checkboxes: []CheckboxSpec{
					{
						// "Ist eine Besichtigung moeglich?" suggestion. The
						// native input is visually hidden behind a styled
						// label.
						Name: "viewing_possible",
						Target: controls.ControlTarget{
							Input:     "#contactSuggestions-6",
							Label:     `label[for="contactSuggestions-6"]`,
							Checkmark: `label[for="contactSuggestions-6"] svg`,
						},
						Checked: true,
					},
					{
						// The Mietprofil share box only renders for accounts
						// that completed a tenant profile.
						Name: "share_tenant_profile",
						Target: controls.ControlTarget{
							Input: "#shareTenantProfile",
							Label: `label[for="shareTenantProfile"]`,
						},
						Checked:  true,
						Optional: true,
					},
				},
				SubmitSelectors: []string{
					`button[data-testid="ad-request-send-mail"]`,
					`button[type="submit"]`,
				},
			},
			{
				Name:     "messaging",
				Selector: `form[data-testid="ad-contact-form-messaging"]`,
				Fields: []FieldSpec{
					{Profile: "message", Selector: "#mailContent", Required: true},
				},
				SubmitSelectors: []string{
					`button[data-testid="ad-request-send-message"]`,
					`button[type="submit"]`,
				},
			},
		},
		Success: SuccessSpec{
			// Covers both "E-Mail wurde erfolgreich..." and "Nachricht
			// wurde erfolgreich..." confirmations.
			Texts: []string{"wurde erfolgreich"},
			XPath: `//*[contains(text(), 'wurde erfolgreich')]`,
		},
		CaptchaSelectors: []string{`iframe[src*="captcha"]`, ".captcha", "#captcha"},
		PopupButtonTexts: []string{"Alle akzeptieren", "Akzeptieren", "Accept"},
		LoginURL:         "https://www.willhaben.at/iad",
		LoggedInSelector: `[data-testid="header-usermenu"], a[href*="/iad/myprofile"]`,
		Probe: session.ValidationProbe{
			URL:           "https://www.willhaben.at/iad/myprofile",
			LoggedInXPath: `//a[contains(@href, 'logout')]`,
			LoginURLHints: []string{"sso.willhaben.at", "login"},
		},
		listingID: willhabenListingID,
	}
}

// willhabenListingID takes the final path segment of the detail URL,
// the slug that ends in the numeric ad id.
func willhabenListingID(u *url.URL) (string, error) {
	segment := lastPathSegment(u.Path)
	if segment == "" {
		return "", fmt.Errorf("no listing slug in path %q", u.Path)
	}
	return segment, nil
}
