// Package platform describes the supported rental portals: how their
// listing URLs are recognized, where the contact form lives, and which
// selectors drive it. Descriptors are plain data so the contact flow
// stays portal-agnostic.
package platform

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/controls"
)

// ErrUnknownPlatform marks listing URLs whose host no descriptor serves.
// Batch entries with unknown hosts fail at attempt creation, before a
// browser ever opens.
var ErrUnknownPlatform = errors.New("unknown platform host")

// FieldSpec maps one applicant profile field onto the form input that
// receives it.
type FieldSpec struct {
	// Profile names the profile field, e.g. "first_name" or "message".
	Profile string
	// Selector locates the input element.
	Selector string
	// Required fails the attempt when the input is missing. Optional
	// fields are skipped when absent.
	Required bool
}

// CheckboxSpec pairs a checkbox control with the state the form must
// hold at submission time.
type CheckboxSpec struct {
	// Name identifies the box in logs and journal entries.
	Name string
	// Target carries the signal selectors for state reads and clicks.
	Target controls.ControlTarget
	// Checked is the state enforced before submit.
	Checked bool
	// Optional marks boxes that only render for some listing types.
	Optional bool
}

// FormSpec describes one contact form variant. Portals that render
// different forms per listing type carry several variants; the first
// one present on the page wins.
type FormSpec struct {
	// Name distinguishes variants in logs.
	Name string
	// Selector locates the form root and doubles as its presence marker.
	Selector string
	// Fields are filled in order.
	Fields []FieldSpec
	// Checkboxes are enforced after the fields settle.
	Checkboxes []CheckboxSpec
	// SubmitSelectors are tried in order until one matches.
	SubmitSelectors []string
}

// AffordanceSpec names the click target that reveals a contact form
// that is not rendered on page load.
type AffordanceSpec struct {
	// Selector is tried first.
	Selector string
	// ButtonTexts fall back to scanning visible buttons and anchors.
	ButtonTexts []string
}

// Empty reports whether the portal has no reveal step.
func (a AffordanceSpec) Empty() bool {
	return a.Selector == "" && len(a.ButtonTexts) == 0
}

// SuccessSpec lists the signals that confirm a submission, evaluated in
// order: visible text fragments, an XPath over the captured document,
// then the disappearance of the form itself.
type SuccessSpec struct {
	// Texts are matched case-insensitively against visible page text.
	Texts []string
	// XPath matches a confirmation node when set.
	XPath string
	// GoneSelector confirms success when the element it names has left
	// the DOM.
	GoneSelector string
}

// Site is the contact-automation descriptor for one rental portal.
type Site struct {
	// Name is the canonical platform identifier recorded in the ledger
	// and the journal.
	Name string
	// Hosts lists the hostnames this descriptor serves.
	Hosts []string
	// RequiresLogin gates session validation before an attempt starts.
	RequiresLogin bool

	// Forms are the contact form variants, most specific first.
	Forms []FormSpec
	// ContactAffordance reveals the form when no variant is present yet.
	ContactAffordance AffordanceSpec
	// Success confirms a landed submission.
	Success SuccessSpec
	// CaptchaSelectors detect a challenge blocking the flow.
	CaptchaSelectors []string
	// PopupButtonTexts are matched against visible buttons to dismiss
	// consent and safety overlays.
	PopupButtonTexts []string

	// LoginURL is opened when the operator must sign in by hand.
	LoginURL string
	// LoggedInSelector is the in-page marker polled during manual login.
	LoggedInSelector string
	// Probe validates a saved session over plain HTTP.
	Probe session.ValidationProbe

	listingID  func(u *url.URL) (string, error)
	contactURL func(u *url.URL) string
}

// ListingID extracts the portal's listing identifier from a detail URL.
func (s *Site) ListingID(u *url.URL) (string, error) {
	if s.listingID == nil {
		return "", fmt.Errorf("platform %s has no listing id rule", s.Name)
	}
	return s.listingID(u)
}

// ContactURL returns the page opened to reach the contact form. Most
// portals host the form on the detail page itself.
func (s *Site) ContactURL(u *url.URL) string {
	if s.contactURL == nil {
		return u.String()
	}
	return s.contactURL(u)
}

// Listing derives the ledger identity for a detail URL.
func (s *Site) Listing(u *url.URL) (schemas.Listing, error) {
	id, err := s.ListingID(u)
	if err != nil {
		return schemas.Listing{}, err
	}
	return schemas.Listing{ID: id, Platform: s.Name, URL: u.String()}, nil
}

// lastPathSegment returns the final non-empty segment of path.
func lastPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1]
}
