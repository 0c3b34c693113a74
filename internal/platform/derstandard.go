package platform

import (
	"fmt"
	"net/url"
	"regexp"
)

var derStandardDetailPattern = regexp.MustCompile(`/detail/(\d+)`)

// DerStandard covers immobilien.derstandard.at. The portal serves an
// anonymous contact form on the detail page, so the full applicant
// identity is typed in and no login session is needed.
func DerStandard() *Site {
	return &Site{
		Name:  "derstandard",
		Hosts: []string{"immobilien.derstandard.at"},
		Forms: []FormSpec{
			{
				Name:     "contact",
				Selector: "#contactForm",
				Fields: []FieldSpec{
					{Profile: "first_name", Selector: "#firstName", Required: true},
					{Profile: "last_name", Selector: "#lastName", Required: true},
					{Profile: "email", Selector: "#email", Required: true},
					{Profile: "phone", Selector: "#phoneNumber"},
					{Profile: "message", Selector: "#message", Required: true},
				},
				SubmitSelectors: []string{`button[type="submit"]`},
			},
		},
		Success: SuccessSpec{
			Texts:        []string{"erfolgreich", "gesendet", "übermittelt", "danke"},
			GoneSelector: "#contactForm",
		},
		CaptchaSelectors: []string{`iframe[src*="captcha"]`, ".captcha", "#captcha"},
		PopupButtonTexts: []string{
			"Alle akzeptieren", "Akzeptieren", "Zustimmen", "Accept", "Einverstanden", "OK",
		},
		listingID: derStandardListingID,
	}
}

func derStandardListingID(u *url.URL) (string, error) {
	m := derStandardDetailPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("no detail id in path %q", u.Path)
	}
	return m[1], nil
}
