// Package captcha detects challenge interstitials and suspends the
// contact flow until they resolve. Manual mode polls for the challenge
// to leave the page; external mode hands the challenge to a solver and
// injects the returned token.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Resolution modes. Manual is the default: a human solves the challenge
// in the visible browser while the engine waits.
const (
	ModeManual   = "manual"
	ModeExternal = "external"
)

// Outcome of a resolution wait. A timed-out wait is an attempt failure
// upstream, never a crash.
type Outcome string

const (
	Resolved Outcome = "resolved"
	TimedOut Outcome = "timed_out"
)

// Challenge describes a detected captcha for logs and solvers.
type Challenge struct {
	// Kind is "geetest", "recaptcha" or "generic".
	Kind string `json:"kind"`
	// Selector is the detection selector that matched.
	Selector string `json:"selector"`
	// PageURL is where the challenge appeared.
	PageURL string `json:"page_url"`
	// SiteKey carries the widget's data-sitekey when discoverable.
	SiteKey string `json:"site_key,omitempty"`
}

// Token is an external solver's answer.
type Token string

// Solver is the external solving collaborator.
type Solver interface {
	Solve(ctx context.Context, challenge Challenge) (Token, error)
}

// detectJS probes the platform's challenge selectors. Only visible
// matches count: portals leave dormant captcha containers in the DOM.
const detectJS = `function (selectors) {
	for (const sel of selectors) {
		let el = null;
		try { el = document.querySelector(sel); } catch (e) { continue; }
		if (!el) continue;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const cls = (el.getAttribute('class') || '') + ' ' + sel;
		let kind = 'generic';
		if (cls.indexOf('geetest') !== -1) kind = 'geetest';
		else if (cls.indexOf('recaptcha') !== -1 || cls.indexOf('g-recaptcha') !== -1) kind = 'recaptcha';
		let siteKey = '';
		const keyed = document.querySelector('[data-sitekey]');
		if (keyed) siteKey = keyed.getAttribute('data-sitekey') || '';
		return { present: true, selector: sel, kind: kind, pageUrl: window.location.href, siteKey: siteKey };
	}
	return { present: false };
}`

// injectTokenJS feeds a solver token to the page through the sinks the
// portals expose: the hidden response textarea and the solvedCaptcha
// callback.
const injectTokenJS = `function (token) {
	let delivered = false;
	const area = document.getElementById('g-recaptcha-response');
	if (area) { area.innerHTML = token; delivered = true; }
	if (typeof window.solvedCaptcha === 'function') { window.solvedCaptcha(token); delivered = true; }
	return delivered;
}`

// Gate owns challenge detection and the pause/resume protocol for one
// platform's selector set.
type Gate struct {
	executor  humanoid.Executor
	selectors []string
	solver    Solver
	cfg       config.CaptchaConfig
	logger    *zap.Logger
}

// NewGate builds a gate over the platform's challenge selectors. The
// solver may be nil unless external mode is requested.
func NewGate(executor humanoid.Executor, selectors []string, solver Solver, cfg config.CaptchaConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Gate{
		executor:  executor,
		selectors: selectors,
		solver:    solver,
		cfg:       cfg,
		logger:    logger.Named("captcha"),
	}
}

// Detect probes the page for a visible challenge. A nil challenge means
// the flow is clear to proceed.
func (g *Gate) Detect(ctx context.Context) (*Challenge, error) {
	if len(g.selectors) == 0 {
		return nil, nil
	}
	raw, err := g.executor.ExecuteScript(ctx, detectJS, []interface{}{g.selectors})
	if err != nil {
		return nil, fmt.Errorf("probe for challenge: %w", err)
	}
	var probe struct {
		Present  bool   `json:"present"`
		Selector string `json:"selector"`
		Kind     string `json:"kind"`
		PageURL  string `json:"pageUrl"`
		SiteKey  string `json:"siteKey"`
	}
	if err := jsonAPI.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode challenge probe: %w", err)
	}
	if !probe.Present {
		return nil, nil
	}
	return &Challenge{
		Kind:     probe.Kind,
		Selector: probe.Selector,
		PageURL:  probe.PageURL,
		SiteKey:  probe.SiteKey,
	}, nil
}

// AwaitResolution blocks until the current challenge resolves or the
// configured ceiling passes. The timed-out outcome comes with a nil
// error; callers decide how hard to fail.
func (g *Gate) AwaitResolution(ctx context.Context, mode string) (Outcome, error) {
	challenge, err := g.Detect(ctx)
	if err != nil {
		return TimedOut, err
	}
	if challenge == nil {
		return Resolved, nil
	}

	g.logger.Warn("Challenge detected, suspending the attempt",
		zap.String("kind", challenge.Kind),
		zap.String("selector", challenge.Selector),
		zap.String("mode", mode))

	switch mode {
	case ModeExternal:
		return g.awaitExternal(ctx, *challenge)
	case ModeManual, "":
		return g.awaitManual(ctx)
	default:
		return TimedOut, fmt.Errorf("unknown captcha mode %q", mode)
	}
}

// awaitManual polls for the challenge element to leave the page, the
// signal that a human solved it in the visible browser.
func (g *Gate) awaitManual(ctx context.Context) (Outcome, error) {
	maxPolls := int(g.cfg.Timeout / g.cfg.PollInterval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	for poll := 0; poll < maxPolls; poll++ {
		if err := ctx.Err(); err != nil {
			return TimedOut, err
		}
		if err := g.executor.Sleep(ctx, g.cfg.PollInterval); err != nil {
			return TimedOut, err
		}

		challenge, err := g.Detect(ctx)
		if err != nil {
			// Transient probe failures ride out the poll budget; the page
			// may be mid-navigation after the solve.
			g.logger.Debug("Challenge probe failed, retrying", zap.Error(err))
			continue
		}
		if challenge == nil {
			g.logger.Info("Challenge cleared", zap.Int("polls", poll+1))
			return Resolved, nil
		}
	}

	g.logger.Warn("Challenge still present after the resolution ceiling",
		zap.Duration("timeout", g.cfg.Timeout))
	return TimedOut, nil
}

// awaitExternal asks the solver for a token and feeds it to the page.
func (g *Gate) awaitExternal(ctx context.Context, challenge Challenge) (Outcome, error) {
	if g.solver == nil {
		return TimedOut, errors.New("external captcha mode configured without a solver")
	}

	solveCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	token, err := g.solver.Solve(solveCtx, challenge)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return TimedOut, nil
		}
		return TimedOut, fmt.Errorf("solve challenge: %w", err)
	}

	raw, err := g.executor.ExecuteScript(ctx, injectTokenJS, []interface{}{string(token)})
	if err != nil {
		return TimedOut, fmt.Errorf("inject solver token: %w", err)
	}
	var delivered bool
	if err := jsonAPI.Unmarshal(raw, &delivered); err != nil {
		return TimedOut, fmt.Errorf("decode token injection result: %w", err)
	}
	if !delivered {
		return TimedOut, errors.New("page exposes no token sink")
	}

	g.logger.Info("Solver token injected", zap.String("kind", challenge.Kind))
	return Resolved, nil
}
