// internal/browser/session/validate.go
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

const loginCheckJS = `function (selector) {
    return !!document.querySelector(selector);
}`

// ValidationProbe describes how to tell whether a platform login is alive
// without touching the tab: an authenticated URL plus the signals that
// distinguish a live session from a login wall.
type ValidationProbe struct {
	// URL is an endpoint that requires authentication.
	URL string
	// LoggedInXPath matches a node that only renders for signed-in users
	// (e.g. a logout link). Empty skips the body check.
	LoggedInXPath string
	// LoginURLHints are substrings of redirect targets that identify the
	// login page. Informational; any redirect off an authenticated
	// endpoint already means the session is gone.
	LoginURLHints []string
}

// Validate probes the platform over HTTP with the tab's current cookies. A
// redirect, auth status code, or missing logged-in marker maps to
// schemas.ErrSessionExpired; transport failures stay ordinary errors so the
// caller can retry without forcing a re-login.
func (s *Session) Validate(ctx context.Context, probe ValidationProbe) error {
	if probe.URL == "" {
		return fmt.Errorf("validation probe has no URL")
	}

	state, err := s.CaptureState(ctx)
	if err != nil {
		return fmt.Errorf("capturing cookies for validation: %w", err)
	}

	client, err := s.newProbeClient()
	if err != nil {
		return fmt.Errorf("building probe client: %w", err)
	}
	seedJar(client.Jar, state.Cookies)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.URL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("session probe request: %w", err)
	}
	defer resp.Body.Close()

	if err := s.judgeProbeResponse(resp, probe); err != nil {
		s.SetLoggedIn(false)
		return err
	}

	s.mu.Lock()
	s.loggedIn = true
	s.lastValidated = time.Now()
	s.mu.Unlock()
	s.logger.Debug("Session validated", zap.String("probe_url", probe.URL))
	return nil
}

func (s *Session) judgeProbeResponse(resp *http.Response, probe ValidationProbe) error {
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		for _, hint := range probe.LoginURLHints {
			if hint != "" && strings.Contains(location, hint) {
				return fmt.Errorf("probe redirected to login page %q: %w", location, schemas.ErrSessionExpired)
			}
		}
		return fmt.Errorf("probe redirected to %q: %w", location, schemas.ErrSessionExpired)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("probe answered %d: %w", resp.StatusCode, schemas.ErrSessionExpired)

	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("probe answered unexpected status %d", resp.StatusCode)
	}

	if probe.LoggedInXPath == "" {
		return nil
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing probe response: %w", err)
	}
	node, err := htmlquery.Query(doc, probe.LoggedInXPath)
	if err != nil {
		return fmt.Errorf("evaluating logged-in marker %q: %w", probe.LoggedInXPath, err)
	}
	if node == nil {
		return fmt.Errorf("logged-in marker %q absent from probe response: %w",
			probe.LoggedInXPath, schemas.ErrSessionExpired)
	}
	return nil
}

// seedJar loads browser cookies into the probe client's jar, grouped per
// domain so the jar applies its own scoping rules.
func seedJar(jar *cookiejar.Jar, cookies []*schemas.Cookie) {
	byDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		byDomain[host] = append(byDomain[host], &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: strings.TrimPrefix(c.Domain, "."),
			Secure: c.Secure,
		})
	}
	for host, group := range byDomain {
		u := &url.URL{Scheme: "https", Host: host}
		jar.SetCookies(u, group)
	}
}

// NeedsValidation reports whether the session should be re-probed: never
// validated, validation older than the configured interval, or the inferred
// expiry already passed.
func (s *Session) NeedsValidation(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.expiresAt.IsZero() && now.After(s.expiresAt) {
		return true
	}
	if s.lastValidated.IsZero() {
		return true
	}
	interval := s.cfg.Session.ValidateInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return now.Sub(s.lastValidated) >= interval
}

// AwaitManualLogin parks the flow while a person completes the login in the
// visible tab, polling for the logged-in marker. On success the state is
// persisted so the next run skips this step.
func (s *Session) AwaitManualLogin(ctx context.Context, loggedInSelector string) error {
	timeout := s.cfg.Session.ManualLoginTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	poll := s.cfg.Session.ManualLoginPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}

	s.logger.Info("Waiting for manual login",
		zap.String("marker", loggedInSelector),
		zap.Duration("timeout", timeout),
	)

	maxPolls := int(timeout / poll)
	if maxPolls < 1 {
		maxPolls = 1
	}

	for i := 0; i < maxPolls; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := s.executor.ExecuteScript(ctx, loginCheckJS, []interface{}{loggedInSelector})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Mid-login navigations tear down the document under the poll.
			s.logger.Debug("Login poll failed, retrying", zap.Error(err))
		} else if string(raw) == "true" {
			s.SetLoggedIn(true)
			if err := s.SaveState(ctx); err != nil {
				s.logger.Warn("Login detected but state save failed", zap.Error(err))
			}
			s.logger.Info("Manual login detected")
			return nil
		}

		if err := s.executor.Sleep(ctx, poll); err != nil {
			return err
		}
	}

	return fmt.Errorf("manual login not completed within %v: %w", timeout, schemas.ErrSessionExpired)
}
