package platform

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/controls"
)

var immoscoutExposePattern = regexp.MustCompile(`/expose/(\d+)`)

// Immoscout covers www.immobilienscout24.de exposes. The contact form
// sits in a request block on the expose page; a Kontakt button reveals
// it on layouts that collapse the block. Signed-in accounts have their
// applicant data prefilled, so only the message and the quick-question
// boxes are driven.
func Immoscout() *Site {
	return &Site{
		Name:          "immoscout",
		Hosts:         []string{"www.immobilienscout24.de", "immobilienscout24.de"},
		RequiresLogin: true,
		Forms: []FormSpec{
			{
				Name:     "contact_request",
				Selector: `[data-testid="contact-request-block"]`,
				Fields: []FieldSpec{
					{Profile: "message", Selector: `textarea[name="messageBody"]`, Required: true},
				},
				Checkboxes: []CheckboxSpec{
					{
						// The quick-question inputs report their state via
						// aria-checked, not the checked property.
						Name:    "exact_address",
						Target:  controls.ControlTarget{Input: `input[name="quickQuestions.exactAddress"]`},
						Checked: true,
					},
					{
						Name:    "appointment",
						Target:  controls.ControlTarget{Input: `input[name="quickQuestions.appointment"]`},
						Checked: true,
					},
					{
						Name:     "more_info",
						Target:   controls.ControlTarget{Input: `input[name="quickQuestions.moreInfo"]`},
						Checked:  false,
						Optional: true,
					},
				},
				SubmitSelectors: []string{
					`button[type="submit"].ContactRequestForm-submit-btn-VBa`,
					`button[type="submit"]`,
				},
			},
		},
		ContactAffordance: AffordanceSpec{
			Selector:    `[data-testid*="contact"] button, button[data-testid*="contact"]`,
			ButtonTexts: []string{"Kontakt", "Nachricht schreiben"},
		},
		Success: SuccessSpec{
			Texts: []string{"Nachricht gesendet", "erfolgreich", "Vielen Dank"},
			XPath: `//*[contains(text(), 'Nachricht gesendet')]`,
		},
		CaptchaSelectors: []string{`iframe[src*="captcha"]`, ".captcha", "#captcha"},
		PopupButtonTexts: []string{"Alle akzeptieren", "Akzeptieren", "Accept"},
		LoginURL:         "https://www.immobilienscout24.de/",
		LoggedInSelector: `[data-testid="header-user-menu"], .user-menu, [href*="/myprofile"]`,
		Probe: session.ValidationProbe{
			URL:           "https://www.immobilienscout24.de/geschlossenerbereich/start.html",
			LoggedInXPath: `//*[@data-testid="header-user-menu"] | //a[contains(@href, '/myprofile')]`,
			LoginURLHints: []string{"sso.immobilienscout24.de", "login"},
		},
		listingID: immoscoutListingID,
	}
}

func immoscoutListingID(u *url.URL) (string, error) {
	m := immoscoutExposePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("no expose id in path %q", u.Path)
	}
	return m[1], nil
}
