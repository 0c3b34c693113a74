package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
)

var wgGesuchtIDPattern = regexp.MustCompile(`\.(\d+)\.html$`)

// WGGesucht covers www.wg-gesucht.de. Messages are written on a
// dedicated nachricht-senden page derived from the listing URL. The
// portal interleaves consent and safety-tips modals with the flow and
// is aggressive about challenging automated traffic.
func WGGesucht() *Site {
	return &Site{
		Name:          "wg-gesucht",
		Hosts:         []string{"www.wg-gesucht.de", "wg-gesucht.de"},
		RequiresLogin: true,
		Forms: []FormSpec{
			{
				Name:     "message",
				Selector: "textarea#message_input",
				Fields: []FieldSpec{
					{Profile: "message", Selector: "textarea#message_input", Required: true},
				},
				SubmitSelectors: []string{
					".conversation_send_button",
					`button[type="submit"]`,
				},
			},
		},
		ContactAffordance: AffordanceSpec{
			Selector:    `a[href*="nachricht-senden"]`,
			ButtonTexts: []string{"Nachricht senden"},
		},
		Success: SuccessSpec{
			Texts: []string{"erfolgreich"},
			XPath: `//*[contains(text(), 'erfolgreich')]`,
		},
		CaptchaSelectors: []string{
			`iframe[src*="geetest"]`,
			".geetest_holder",
			`iframe[src*="recaptcha"]`,
			".g-recaptcha",
			"#captcha",
		},
		PopupButtonTexts: []string{
			"Alle akzeptieren",
			"Accept",
			"Ich habe die Sicherheitstipps gelesen",
		},
		LoginURL:         "https://www.wg-gesucht.de/",
		LoggedInSelector: `a[href*="logout"], #login_user_menu`,
		Probe: session.ValidationProbe{
			URL:           "https://www.wg-gesucht.de/mein-wg-gesucht.html",
			LoggedInXPath: `//a[contains(text(), 'Logout')] | //a[contains(@href, 'logout')]`,
			LoginURLHints: []string{"login"},
		},
		listingID:  wgGesuchtListingID,
		contactURL: wgGesuchtContactURL,
	}
}

// wgGesuchtListingID reads the numeric segment before the .html suffix,
// e.g. wg-zimmer-in-Berlin.9876543.html.
func wgGesuchtListingID(u *url.URL) (string, error) {
	m := wgGesuchtIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("no listing id in path %q", u.Path)
	}
	return m[1], nil
}

// wgGesuchtContactURL prefixes the listing path with /nachricht-senden,
// the message composer for that listing.
func wgGesuchtContactURL(u *url.URL) string {
	if strings.HasPrefix(u.Path, "/nachricht-senden/") {
		return u.String()
	}
	contact := *u
	contact.Path = "/nachricht-senden" + u.Path
	return contact.String()
}
