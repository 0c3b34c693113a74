// Package profile carries the applicant identity and renders the
// message template sent to listers.
package profile

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Profile is the validated applicant identity plus the message
// template. Field values are what gets typed into contact forms.
type Profile struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Salutation string
	// Message is the template, expanded per listing via Render.
	Message string

	logger *zap.Logger
}

// New validates the configured applicant data. First name, last name,
// email and the message template are required; phone and salutation
// are optional because not every portal asks for them.
func New(cfg config.ProfileConfig, logger *zap.Logger) (*Profile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profile{
		FirstName:  strings.TrimSpace(cfg.FirstName),
		LastName:   strings.TrimSpace(cfg.LastName),
		Email:      strings.TrimSpace(cfg.Email),
		Phone:      strings.TrimSpace(cfg.Phone),
		Salutation: strings.TrimSpace(cfg.Salutation),
		Message:    cfg.Message,
		logger:     logger.Named("profile"),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) validate() error {
	var missing []string
	if p.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if p.LastName == "" {
		missing = append(missing, "last_name")
	}
	if p.Email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(p.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("profile is missing required fields: %s", strings.Join(missing, ", "))
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("profile email %q is not an address", p.Email)
	}
	return nil
}

// Values maps descriptor field names to the text typed into the form.
// The message is rendered against the listing so templates can mention
// the property they answer.
func (p *Profile) Values(listing schemas.Listing) map[string]string {
	return map[string]string{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"email":      p.Email,
		"phone":      p.Phone,
		"salutation": p.Salutation,
		"message":    p.Render(listing),
	}
}

// Render expands {field} placeholders in the message template against
// the listing metadata. Unknown placeholders stay verbatim so a typo
// in the template shows up in review instead of vanishing silently.
func (p *Profile) Render(listing schemas.Listing) string {
	context := p.templateContext(listing)

	var unknown []string
	seen := make(map[string]struct{})
	rendered := placeholderPattern.ReplaceAllStringFunc(p.Message, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := context[strings.ToLower(name)]; ok {
			return value
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			unknown = append(unknown, name)
		}
		return match
	})

	if len(unknown) > 0 {
		p.logger.Warn("Message template has unresolved placeholders",
			zap.String("listing_id", listing.ID),
			zap.Strings("placeholders", unknown))
	}
	return strings.TrimSpace(rendered)
}

// templateContext merges listing metadata with the listing identity and
// the applicant fields. Identity and applicant values win collisions so
// scraped metadata cannot rewrite who is applying.
func (p *Profile) templateContext(listing schemas.Listing) map[string]string {
	context := make(map[string]string, len(listing.Fields)+8)
	for key, value := range listing.Fields {
		context[strings.ToLower(strings.TrimSpace(key))] = value
	}
	context["url"] = listing.URL
	context["listing_id"] = listing.ID
	context["platform"] = listing.Platform
	context["first_name"] = p.FirstName
	context["last_name"] = p.LastName
	context["email"] = p.Email
	context["phone"] = p.Phone
	context["salutation"] = p.Salutation
	return context
}
