// Package session owns one logged-in platform tab: the chromedp context, the
// humanoid controller driving it, persisted login state, and the probes that
// decide whether the login is still alive.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/network"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/stealth"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

// Session is a single platform tab plus everything needed to act like its
// owner: input synthesis, stored login state, and validity probes.
type Session struct {
	id       string
	platform string
	logger   *zap.Logger
	cfg      *config.Config
	persona  stealth.Persona

	tabCtx           context.Context
	tabCancel        context.CancelFunc
	browserContextID cdp.BrowserContextID

	executor   humanoid.Executor
	controller humanoid.Controller
	store      *StateStore

	mu             sync.RWMutex
	loggedIn       bool
	expiresAt      time.Time
	lastValidated  time.Time
	createdAt      time.Time
	actions        int
	pendingLocal   map[string]string
	pendingSession map[string]string

	closeOnce sync.Once
	onClose   func()
}

// Params collects everything a Session needs. TabContext must already carry
// the chromedp target; the manager owns allocator and browser-context setup.
type Params struct {
	TabContext       context.Context
	TabCancel        context.CancelFunc
	BrowserContextID cdp.BrowserContextID
	Platform         string
	Config           *config.Config
	Persona          stealth.Persona
	Humanoid         humanoid.Config
	Logger           *zap.Logger
	OnClose          func()
}

// New wires a Session around an existing tab context.
func New(p Params) (*Session, error) {
	if p.TabContext == nil {
		return nil, fmt.Errorf("session requires a tab context")
	}
	if p.Config == nil {
		return nil, fmt.Errorf("session requires a config")
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	s := &Session{
		id:               uuid.New().String(),
		platform:         p.Platform,
		cfg:              p.Config,
		persona:          p.Persona,
		tabCtx:           p.TabContext,
		tabCancel:        p.TabCancel,
		browserContextID: p.BrowserContextID,
		store:            NewStateStore(p.Config.Session.DataDir),
		createdAt:        time.Now(),
		onClose:          p.OnClose,
	}
	s.logger = p.Logger.With(
		zap.String("session_id", s.id),
		zap.String("platform", p.Platform),
	)

	s.executor = &cdpExecutor{
		logger:     s.logger.Named("cdp"),
		runActions: s.RunActions,
	}
	s.controller = humanoid.New(p.Humanoid, s.logger.Named("humanoid"), s.executor)

	return s, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Platform() string { return s.platform }

// Controller exposes the humanoid interaction surface for this tab.
func (s *Session) Controller() humanoid.Controller { return s.controller }

// Executor exposes the low-level input surface. The controls package drives
// it directly for raw pointer pairs and script probes.
func (s *Session) Executor() humanoid.Executor { return s.executor }

// Context returns the tab's lifecycle context.
func (s *Session) Context() context.Context { return s.tabCtx }

func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// RecordAction bumps the per-session action counter and returns the new
// total. The manager's restart policy reads it.
func (s *Session) RecordAction() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions++
	return s.actions
}

func (s *Session) Actions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actions
}

func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

func (s *Session) SetLoggedIn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = v
}

// ExpiresAt reports the inferred end of the stored login, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// RunActions executes chromedp actions against this tab under the caller's
// deadline.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil {
		// Report the root cancellation rather than chromedp's view of it.
		if s.tabCtx.Err() != nil {
			return fmt.Errorf("session closed: %w", s.tabCtx.Err())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// Navigate loads a URL in the tab and waits for the document body. A short
// cognitive pause runs first so navigations don't fire back to back at
// machine speed.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.Browser.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("Navigating", zap.String("url", url))

	if err := s.controller.CognitivePause(navCtx, 600, 250); err != nil {
		return err
	}

	err := s.RunActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %s: %w", url, err)
	}

	if err := s.restoreWebStorage(navCtx); err != nil {
		s.logger.Debug("Web storage restore after navigation failed", zap.Error(err))
	}
	return nil
}

// CurrentURL reads the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.RunActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return loc, nil
}

// Screenshot captures the full page as PNG for diagnostic snapshots.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.RunActions(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// HTML returns the serialized document as currently rendered.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.RunActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capturing document: %w", err)
	}
	return html, nil
}

// newProbeClient builds the HTTP client used for login validation probes.
func (s *Session) newProbeClient() (*network.ProbeClient, error) {
	return network.NewProbeClient(network.ProbeClientConfig{
		Timeout:   s.cfg.Session.ProbeTimeout,
		UserAgent: s.persona.UserAgent,
	})
}

// Close cancels the tab context and runs the manager callback once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session")
		if s.tabCancel != nil {
			s.tabCancel()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}
