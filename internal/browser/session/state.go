// internal/browser/session/state.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpnetwork "github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

const webStorageReadJS = `function () {
    const result = { localStorage: {}, sessionStorage: {} };
    try {
        for (let i = 0; i < localStorage.length; i++) {
            const k = localStorage.key(i);
            result.localStorage[k] = localStorage.getItem(k);
        }
    } catch (e) { /* storage blocked for this origin */ }
    try {
        for (let i = 0; i < sessionStorage.length; i++) {
            const k = sessionStorage.key(i);
            result.sessionStorage[k] = sessionStorage.getItem(k);
        }
    } catch (e) { /* storage blocked for this origin */ }
    return result;
}`

const webStorageWriteJS = `function (local, session) {
    try {
        for (const k in local) { localStorage.setItem(k, local[k]); }
    } catch (e) { /* storage blocked for this origin */ }
    try {
        for (const k in session) { sessionStorage.setItem(k, session[k]); }
    } catch (e) { /* storage blocked for this origin */ }
    return true;
}`

// CaptureState reads cookies for the whole browser context plus the current
// origin's web storage.
func (s *Session) CaptureState(ctx context.Context) (*schemas.StorageState, error) {
	state := &schemas.StorageState{
		LocalStorage:   make(map[string]string),
		SessionStorage: make(map[string]string),
	}

	var cookies []*cdpnetwork.Cookie
	err := s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) (err error) {
		get := storage.GetCookies()
		if s.browserContextID != "" {
			get = get.WithBrowserContextID(s.browserContextID)
		}
		cookies, err = get.Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, &schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Size:     c.Size,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: schemas.CookieSameSite(c.SameSite),
		})
	}

	// Web storage only exists per origin, so this reads whatever page the
	// tab currently shows. Cookie capture above is origin-independent.
	raw, err := s.executor.ExecuteScript(ctx, webStorageReadJS, nil)
	if err != nil {
		s.logger.Debug("Web storage capture failed, keeping cookies only", zap.Error(err))
		return state, nil
	}
	var webStorage struct {
		LocalStorage   map[string]string `json:"localStorage"`
		SessionStorage map[string]string `json:"sessionStorage"`
	}
	if err := jsonAPI.Unmarshal(raw, &webStorage); err == nil {
		if webStorage.LocalStorage != nil {
			state.LocalStorage = webStorage.LocalStorage
		}
		if webStorage.SessionStorage != nil {
			state.SessionStorage = webStorage.SessionStorage
		}
	}

	return state, nil
}

// RestoreState installs saved cookies into the browser context and queues
// web storage for replay after the next navigation. Cookies apply
// immediately; localStorage needs a document on the right origin first.
func (s *Session) RestoreState(ctx context.Context, state *schemas.StorageState) error {
	if state == nil {
		return nil
	}

	params := make([]*cdpnetwork.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		p := &cdpnetwork.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: cdpnetwork.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	if len(params) > 0 {
		if err := s.RunActions(ctx, cdpnetwork.SetCookies(params)); err != nil {
			return fmt.Errorf("restoring cookies: %w", err)
		}
	}

	s.mu.Lock()
	s.pendingLocal = state.LocalStorage
	s.pendingSession = state.SessionStorage
	s.expiresAt = StateExpiry(state, time.Now())
	s.mu.Unlock()

	s.logger.Debug("Session state restored",
		zap.Int("cookies", len(params)),
		zap.Time("expires_at", s.ExpiresAt()),
	)
	return nil
}

// restoreWebStorage replays queued web storage onto the current origin.
// Runs after navigation; clears the queue on success.
func (s *Session) restoreWebStorage(ctx context.Context) error {
	s.mu.Lock()
	local, sess := s.pendingLocal, s.pendingSession
	s.mu.Unlock()
	if len(local) == 0 && len(sess) == 0 {
		return nil
	}

	if local == nil {
		local = map[string]string{}
	}
	if sess == nil {
		sess = map[string]string{}
	}
	if _, err := s.executor.ExecuteScript(ctx, webStorageWriteJS, []interface{}{local, sess}); err != nil {
		return err
	}

	s.mu.Lock()
	s.pendingLocal, s.pendingSession = nil, nil
	s.mu.Unlock()
	return nil
}

// SaveState captures the live state and persists it for this platform.
func (s *Session) SaveState(ctx context.Context) error {
	state, err := s.CaptureState(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Save(s.platform, state); err != nil {
		return err
	}

	s.mu.Lock()
	s.expiresAt = StateExpiry(state, time.Now())
	s.mu.Unlock()

	s.logger.Info("Session state saved",
		zap.Int("cookies", len(state.Cookies)),
		zap.Time("expires_at", s.ExpiresAt()),
	)
	return nil
}

// LoadState restores the persisted state for this platform, if any.
func (s *Session) LoadState(ctx context.Context) (bool, error) {
	state, err := s.store.Load(s.platform)
	if err != nil {
		return false, err
	}
	if err := s.RestoreState(ctx, state); err != nil {
		return false, err
	}
	return true, nil
}

// Names that mark a cookie as part of the auth machinery. Expiry of other
// cookies (consent banners, analytics) says nothing about the login.
var authCookieMarkers = []string{"session", "token", "auth", "login", "remember", "jwt", "sid"}

func isAuthCookie(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range authCookieMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StateExpiry infers when a stored login stops working. JWT cookies carry
// their own exp claim; for opaque auth cookies the cookie expiry is the only
// available signal. Returns the earliest future candidate, zero when the
// state gives nothing to go on.
func StateExpiry(state *schemas.StorageState, now time.Time) time.Time {
	if state == nil {
		return time.Time{}
	}

	var earliest time.Time
	consider := func(t time.Time) {
		if t.IsZero() || !t.After(now) {
			return
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}

	for _, c := range state.Cookies {
		if c == nil {
			continue
		}
		if exp, ok := jwtExpiry(c.Value); ok {
			consider(exp)
			continue
		}
		if isAuthCookie(c.Name) && c.Expires > 0 && !c.Session {
			consider(time.Unix(int64(c.Expires), 0))
		}
	}

	// Platforms sometimes park the access token in localStorage instead.
	for _, v := range state.LocalStorage {
		if exp, ok := jwtExpiry(v); ok {
			consider(exp)
		}
	}

	return earliest
}

// jwtExpiry extracts the exp claim from a JWT-shaped value without verifying
// the signature; the token's lifetime is trusted, its authenticity is not
// our problem here.
func jwtExpiry(value string) (time.Time, bool) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "Bearer ")
	if strings.Count(value, ".") != 2 || len(value) < 20 {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(value, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
