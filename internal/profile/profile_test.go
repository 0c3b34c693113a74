package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

func validProfileConfig() config.ProfileConfig {
	return config.ProfileConfig{
		FirstName:  "Max",
		LastName:   "Mustermann",
		Email:      "max@example.org",
		Phone:      "+43 660 1234567",
		Salutation: "Sehr geehrte Damen und Herren",
		Message:    "{salutation},\n\nich interessiere mich für {title}.\n\nMit freundlichen Grüßen\n{first_name} {last_name}",
	}
}

func TestNewRequiresCoreFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.ProfileConfig)
		missing string
	}{
		{"first name", func(c *config.ProfileConfig) { c.FirstName = "" }, "first_name"},
		{"last name", func(c *config.ProfileConfig) { c.LastName = "  " }, "last_name"},
		{"email", func(c *config.ProfileConfig) { c.Email = "" }, "email"},
		{"message", func(c *config.ProfileConfig) { c.Message = "\n\t " }, "message"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validProfileConfig()
			tc.mutate(&cfg)

			_, err := New(cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.missing)
		})
	}

	t.Run("every gap is reported at once", func(t *testing.T) {
		_, err := New(config.ProfileConfig{}, zap.NewNop())
		require.Error(t, err)
		for _, field := range []string{"first_name", "last_name", "email", "message"} {
			assert.Contains(t, err.Error(), field)
		}
	})
}

func TestNewRejectsNonAddressEmail(t *testing.T) {
	cfg := validProfileConfig()
	cfg.Email = "not-an-address"

	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestNewTrimsWhitespace(t *testing.T) {
	cfg := validProfileConfig()
	cfg.FirstName = "  Max  "
	cfg.Email = " max@example.org "

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "Max", p.FirstName)
	assert.Equal(t, "max@example.org", p.Email)
}

func TestRenderExpandsListingMetadata(t *testing.T) {
	p, err := New(validProfileConfig(), zap.NewNop())
	require.NoError(t, err)

	listing := schemas.Listing{
		ID:       "540123456",
		Platform: "willhaben",
		URL:      "https://www.willhaben.at/iad/immobilien/d/wohnung-540123456/",
		Fields:   map[string]string{"title": "3-Zimmer Altbau, 1020 Wien"},
	}

	rendered := p.Render(listing)
	assert.Contains(t, rendered, "ich interessiere mich für 3-Zimmer Altbau, 1020 Wien.")
	assert.Contains(t, rendered, "Sehr geehrte Damen und Herren,")
	assert.Contains(t, rendered, "Max Mustermann")
	assert.NotContains(t, rendered, "{")
}

func TestRenderResolvesBuiltinsWithoutMetadata(t *testing.T) {
	cfg := validProfileConfig()
	cfg.Message = "Inserat {listing_id} auf {platform}: {url}"

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	rendered := p.Render(schemas.Listing{
		ID:       "158273944",
		Platform: "immoscout",
		URL:      "https://www.immobilienscout24.de/expose/158273944",
	})
	assert.Equal(t, "Inserat 158273944 auf immoscout: https://www.immobilienscout24.de/expose/158273944", rendered)
}

func TestRenderMatchesPlaceholdersCaseInsensitively(t *testing.T) {
	cfg := validProfileConfig()
	cfg.Message = "Betreff: {Title}"

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	rendered := p.Render(schemas.Listing{Fields: map[string]string{"title": "WG-Zimmer"}})
	assert.Equal(t, "Betreff: WG-Zimmer", rendered)
}

func TestRenderLeavesUnknownPlaceholdersIntact(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := validProfileConfig()
	cfg.Message = "Hallo, {title} kostet {warm_rent}? Und {warm_rent} inkl. {extra}?"

	p, err := New(cfg, zap.New(core))
	require.NoError(t, err)

	rendered := p.Render(schemas.Listing{ID: "l-1", Fields: map[string]string{"title": "Altbau"}})
	assert.Contains(t, rendered, "{warm_rent}")
	assert.Contains(t, rendered, "{extra}")
	assert.NotContains(t, rendered, "{title}")

	entries := logs.FilterMessage("Message template has unresolved placeholders").All()
	require.Len(t, entries, 1)
	names, ok := entries[0].ContextMap()["placeholders"].([]interface{})
	require.True(t, ok)
	// Repeated placeholders are reported once.
	assert.ElementsMatch(t, []interface{}{"warm_rent", "extra"}, names)
}

func TestRenderKeepsApplicantIdentityOnCollision(t *testing.T) {
	cfg := validProfileConfig()
	cfg.Message = "Von: {first_name} {last_name}"

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	rendered := p.Render(schemas.Listing{
		Fields: map[string]string{"first_name": "Spoofed", "last_name": "Name"},
	})
	assert.Equal(t, "Von: Max Mustermann", rendered)
}

func TestValuesCarriesRenderedMessage(t *testing.T) {
	p, err := New(validProfileConfig(), zap.NewNop())
	require.NoError(t, err)

	values := p.Values(schemas.Listing{Fields: map[string]string{"title": "Loft"}})
	assert.Equal(t, "Max", values["first_name"])
	assert.Equal(t, "Mustermann", values["last_name"])
	assert.Equal(t, "max@example.org", values["email"])
	assert.Equal(t, "+43 660 1234567", values["phone"])
	assert.Contains(t, values["message"], "ich interessiere mich für Loft.")
	assert.NotContains(t, values["message"], "{title}")
}
