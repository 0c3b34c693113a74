// Package stealth makes the automated tab present as a user-operated
// browser: consistent user agent, locale, timezone, and a pre-document
// script that patches the surfaces headless Chrome leaks through.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser identity a tab presents. Every field must be
// mutually consistent; a Viennese timezone with en-US languages is itself a
// fingerprint.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
}

// DefaultPersona is a common desktop Chrome profile.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"de-AT", "de", "en"},
	Timezone:  "Europe/Vienna",
	Locale:    "de-AT",
}

// PersonaFromConfig overlays configured identity fields on the default
// persona. Empty config fields keep the default.
func PersonaFromConfig(cfg config.StealthConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Platform != "" {
		p.Platform = cfg.Platform
	}
	if len(cfg.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Languages...)
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	return p
}

// acceptLanguageHeader renders the persona's language preference list with
// descending q-values, the way Chrome formats it.
func acceptLanguageHeader(languages []string) string {
	if len(languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply builds the DevTools actions that install the persona on a tab. It
// must run before the first navigation; the evasions script only covers
// documents created after injection.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("timezone", p.Timezone),
		zap.String("locale", p.Locale),
	)

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(acceptLanguageHeader(p.Languages)),

		// AddScriptToEvaluateOnNewDocument returns an identifier alongside
		// the error, so it cannot sit in the Tasks slice directly.
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("injecting evasions script: %w", err)
			}
			return nil
		}),

		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),

		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguageHeader(p.Languages),
		}),
	}
}
