// internal/browser/manager.go

// Package browser owns the Chrome process and hands out per-platform
// sessions, each isolated in its own browser context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/stealth"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager launches the browser lazily and tracks one session per platform.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config
	rng    *rand.Rand

	baseCtx context.Context

	initOnce sync.Once
	initErr  error

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// Target/browser-context creation against the shared control channel is
	// serialized; concurrent CreateTarget calls confuse some Chrome builds.
	contextCreationLock sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

// NewManager creates the manager. The browser process starts on first
// session request, not here; ctx bounds the whole browser lifetime.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("browser manager requires a config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		baseCtx:  ctx,
		sessions: make(map[string]*session.Session),
	}
	m.logger.Info("Browser manager created, launch deferred until first session")
	return m, nil
}

// initialize starts Chrome and connects the control channel.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			m.initErr = err
			return
		}

		persona := stealth.PersonaFromConfig(m.cfg.Browser.Stealth)
		opts := AllocatorOptions(m.cfg.Browser, persona, m.rng)

		allocCtx, allocCancel := chromedp.NewExecAllocator(m.baseCtx, opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx,
			chromedp.WithErrorf(m.logger.Sugar().Errorf),
		)

		// An empty run launches the process.
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			m.initErr = fmt.Errorf("launching browser: %w", err)
			return
		}

		m.allocCtx, m.allocCancel = allocCtx, allocCancel
		m.browserCtx, m.browserCancel = browserCtx, browserCancel
		m.logger.Info("Browser launched", zap.Bool("headless", m.cfg.Browser.Headless))
	})
	return m.initErr
}

// controllerContext aims browser-domain commands at the process itself
// rather than any one tab.
func (m *Manager) controllerContext() (context.Context, error) {
	c := chromedp.FromContext(m.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser control channel not available")
	}
	return cdp.WithExecutor(m.browserCtx, c.Browser), nil
}

// Session returns the live session for a platform, creating or recycling one
// as needed.
func (m *Manager) Session(ctx context.Context, platform string) (*session.Session, error) {
	if platform == "" {
		return nil, fmt.Errorf("platform name is empty")
	}
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	existing := m.sessions[platform]
	m.mu.RUnlock()

	if existing != nil {
		if !m.shouldRecycle(existing) {
			return existing, nil
		}
		m.logger.Info("Recycling session",
			zap.String("platform", platform),
			zap.Int("actions", existing.Actions()),
			zap.Duration("age", time.Since(existing.CreatedAt())),
		)
		existing.Close()
	}

	return m.newSession(ctx, platform)
}

// shouldRecycle applies the configured ceilings. Long-lived contexts
// accumulate fingerprintable state, and the original drivers rotated on the
// same action/age bounds.
func (m *Manager) shouldRecycle(s *session.Session) bool {
	if s.Context().Err() != nil {
		return true
	}
	if limit := m.cfg.Browser.RestartAfterActions; limit > 0 && s.Actions() >= limit {
		return true
	}
	if limit := m.cfg.Browser.RestartAfterAge; limit > 0 && time.Since(s.CreatedAt()) >= limit {
		return true
	}
	return false
}

func (m *Manager) newSession(ctx context.Context, platform string) (*session.Session, error) {
	persona := stealth.PersonaFromConfig(m.cfg.Browser.Stealth)

	m.contextCreationLock.Lock()
	browserContextID, targetID, err := m.createIsolatedTarget(ctx)
	m.contextCreationLock.Unlock()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))

	// Attach to the target and install the persona before anything navigates.
	if err := chromedp.Run(tabCtx, stealth.Apply(persona, m.logger)); err != nil {
		tabCancel()
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("applying persona to new tab: %w", err)
	}

	var sessID string
	m.wg.Add(1)
	sess, err := session.New(session.Params{
		TabContext:       tabCtx,
		TabCancel:        tabCancel,
		BrowserContextID: browserContextID,
		Platform:         platform,
		Config:           m.cfg,
		Persona:          persona,
		Humanoid:         HumanoidFromConfig(m.cfg.Browser.Humanoid),
		Logger:           m.logger,
		OnClose: func() {
			m.disposeBrowserContext(browserContextID)
			m.mu.Lock()
			if cur, ok := m.sessions[platform]; ok && cur.ID() == sessID {
				delete(m.sessions, platform)
			}
			m.mu.Unlock()
			m.wg.Done()
			m.logger.Debug("Session released", zap.String("platform", platform))
		},
	})
	if err != nil {
		tabCancel()
		m.disposeBrowserContext(browserContextID)
		m.wg.Done()
		return nil, fmt.Errorf("assembling session: %w", err)
	}
	sessID = sess.ID()

	m.mu.Lock()
	m.sessions[platform] = sess
	m.mu.Unlock()

	// A saved login from a previous run shortcuts the manual login flow.
	if ok, err := sess.LoadState(ctx); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Debug("No saved login state", zap.String("platform", platform))
		} else {
			m.logger.Warn("Could not restore saved login state",
				zap.String("platform", platform), zap.Error(err))
		}
	} else if ok {
		m.logger.Info("Restored saved login state", zap.String("platform", platform))
	}

	m.logger.Info("Session created",
		zap.String("platform", platform),
		zap.String("session_id", sess.ID()),
	)
	return sess, nil
}

func (m *Manager) createIsolatedTarget(ctx context.Context) (cdp.BrowserContextID, target.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", "", fmt.Errorf("cancelled before creating browser context: %w", err)
	}
	ctl, err := m.controllerContext()
	if err != nil {
		return "", "", err
	}

	browserContextID, err := target.CreateBrowserContext().Do(ctl)
	if err != nil {
		return "", "", fmt.Errorf("creating browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(ctl)
	if err != nil {
		m.disposeBrowserContext(browserContextID)
		return "", "", fmt.Errorf("creating target: %w", err)
	}
	return browserContextID, targetID, nil
}

// disposeBrowserContext is best effort; during shutdown the whole process is
// going away anyway.
func (m *Manager) disposeBrowserContext(id cdp.BrowserContextID) {
	if id == "" || m.browserCtx == nil || m.browserCtx.Err() != nil {
		return
	}
	ctl, err := m.controllerContext()
	if err != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(ctl, 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(cleanupCtx); err != nil {
		m.logger.Debug("Browser context cleanup failed",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// Shutdown closes all sessions, then stops the browser. ctx bounds how long
// the session drain may take.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager")

	m.mu.RLock()
	open := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		go s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close", zap.Error(ctx.Err()))
	}

	if m.browserCtx == nil {
		m.logger.Info("Browser never launched, nothing to stop")
		return nil
	}

	// chromedp.Cancel blocks until the process exits, so it gets its own
	// grace period.
	stopped := make(chan error, 1)
	go func() { stopped <- chromedp.Cancel(m.browserCtx) }()

	var shutdownErr error
	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, context.Canceled) {
			shutdownErr = fmt.Errorf("stopping browser: %w", err)
		}
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Browser did not exit in time, cancelling allocator")
	}

	m.browserCancel()
	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete")
	return shutdownErr
}

// HumanoidFromConfig maps the operator-facing knobs onto the simulation's
// population parameters. Disabled selects a swift profile for debugging: no
// typos, no distraction stretches, minimal pauses.
func HumanoidFromConfig(hc config.HumanoidConfig) humanoid.Config {
	c := humanoid.DefaultConfig()

	if !hc.Enabled {
		c.TypoRateMean = 0
		c.TypoRateStdDev = 0
		c.DistractionProbability = 0
		c.KeyPauseMean = 5
		c.KeyPauseStdDev = 1
		c.KeyPauseMin = 1
		c.KeyPauseMax = 10
		c.WordPauseMeanMs = 0
		c.WordPauseStdDevMs = 0
		c.ReadingMinMs = 0
		c.ReadingMaxMs = 0
		return c
	}

	if hc.TypoRate >= 0 {
		c.TypoRateMean = hc.TypoRate
	}
	if hc.DistractionProbability >= 0 {
		c.DistractionProbability = hc.DistractionProbability
	}
	if hc.KeyPauseMeanMs > 0 {
		c.KeyPauseMean = hc.KeyPauseMeanMs
	}
	if hc.ClickHoldMinMs > 0 {
		c.ClickHoldMinMs = hc.ClickHoldMinMs
	}
	if hc.ClickHoldMaxMs > 0 {
		c.ClickHoldMaxMs = hc.ClickHoldMaxMs
	}
	return c
}
