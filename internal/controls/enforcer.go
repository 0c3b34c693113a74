package controls

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	_ "embed"

	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
)

//go:embed stability.js
var stabilityBridgeJS string

// scriptClickJS is the last-rung strategy: a plain programmatic click.
const scriptClickJS = `function (selector) {
    const el = document.querySelector(selector);
    if (!el) {
        return false;
    }
    el.click();
    return true;
}`

// StrategyKind tags one way of flipping a control.
type StrategyKind string

const (
	// StrategyLabelClick clicks the associated label with the full humanoid
	// pointer model.
	StrategyLabelClick StrategyKind = "label-click"
	// StrategyPointerPair dispatches a raw press/release pair at the
	// element's center.
	StrategyPointerPair StrategyKind = "pointer-pair"
	// StrategyScriptClick calls el.click() from script.
	StrategyScriptClick StrategyKind = "script-click"
)

// EnforcerState names a step of the enforcement machine.
type EnforcerState string

const (
	StateUnverified   EnforcerState = "UNVERIFIED"
	StateStableWait   EnforcerState = "STABLE_WAIT"
	StateObserved     EnforcerState = "OBSERVED"
	StateTargetMet    EnforcerState = "TARGET_MET"
	StateEnforcing    EnforcerState = "ENFORCING"
	StatePersistCheck EnforcerState = "PERSIST_CHECK"
	StateRetry        EnforcerState = "RETRY"
	StateDone         EnforcerState = "DONE"
)

// EnforcerConfig tunes the waits and bounds of the machine. The zero value
// is repaired to the defaults field by field.
type EnforcerConfig struct {
	// SettleQuiet is how long the watched region must stay mutation-free
	// before reads are trusted.
	SettleQuiet time.Duration
	// SettleCeiling caps the stability wait. Hitting it is not an error;
	// the persist check exists for late re-renders.
	SettleCeiling time.Duration
	// PollInterval is the cadence of the stability poll.
	PollInterval time.Duration
	// PersistDelay is how long after a pass the control is re-observed to
	// catch the host framework reverting it.
	PersistDelay time.Duration
	// MaxRetries bounds the RETRY transitions after the initial pass.
	MaxRetries int
	// RetryBackoff is the delay before the first retry. It doubles with
	// every further retry.
	RetryBackoff time.Duration
	// RandomizeStrategies shuffles the strategy ladder per pass so repeated
	// enforcement does not replay a fixed, recognizable pattern.
	RandomizeStrategies bool
}

func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{
		SettleQuiet:         500 * time.Millisecond,
		SettleCeiling:       2 * time.Second,
		PollInterval:        100 * time.Millisecond,
		PersistDelay:        500 * time.Millisecond,
		MaxRetries:          3,
		RetryBackoff:        500 * time.Millisecond,
		RandomizeStrategies: true,
	}
}

// sanitized fills non-positive fields from the defaults so a partially
// populated config cannot stall or spin the machine.
func (c EnforcerConfig) sanitized() EnforcerConfig {
	def := DefaultEnforcerConfig()
	if c.SettleQuiet <= 0 {
		c.SettleQuiet = def.SettleQuiet
	}
	if c.SettleCeiling <= 0 {
		c.SettleCeiling = def.SettleCeiling
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PersistDelay <= 0 {
		c.PersistDelay = def.PersistDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	return c
}

// Outcome classifies how an enforcement run ended.
type Outcome string

const (
	// OutcomeAlreadySet means the control was observed in the wanted state
	// without any strategy being dispatched.
	OutcomeAlreadySet Outcome = "already-set"
	// OutcomeEnforced means a strategy flipped the control and the state
	// survived the persist check.
	OutcomeEnforced Outcome = "enforced"
	// OutcomeExhausted means every retry failed.
	OutcomeExhausted Outcome = "exhausted"
)

// Report summarizes one enforcement run for logging and diagnostics.
type Report struct {
	Target   bool
	Outcome  Outcome
	Strategy StrategyKind
	Retries  int
	Final    schemas.ControlObservation
	Elapsed  time.Duration
}

// Enforcer drives one control to a target state and confirms the state
// survives re-rendering. Not safe for concurrent use; one enforcer belongs
// to one session.
type Enforcer struct {
	controller humanoid.Controller
	executor   humanoid.Executor
	observer   *Observer
	config     EnforcerConfig
	logger     *zap.Logger
	rng        *rand.Rand
}

func NewEnforcer(controller humanoid.Controller, executor humanoid.Executor, observer *Observer, cfg EnforcerConfig, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		controller: controller,
		executor:   executor,
		observer:   observer,
		config:     cfg.sanitized(),
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enforce drives the control named by target to the wanted state.
//
// The machine runs UNVERIFIED, STABLE_WAIT, OBSERVED, then either TARGET_MET
// or ENFORCING, then PERSIST_CHECK, then DONE or RETRY. A retry backs off
// and loops to STABLE_WAIT, since a revert usually means the page is
// re-rendering again. Exhausting the retries returns
// schemas.ErrEnforcementExhausted; the caller decides whether that aborts
// anything.
func (e *Enforcer) Enforce(ctx context.Context, target ControlTarget, want bool) (Report, error) {
	started := time.Now()
	report := Report{Target: want}
	log := e.logger.With(zap.String("control", target.Input), zap.Bool("want", want))

	state := StateUnverified
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			report.Retries = retries
			report.Elapsed = time.Since(started)
			return report, err
		}

		switch state {
		case StateUnverified:
			state = StateStableWait

		case StateStableWait:
			if err := e.awaitStability(ctx, target, log); err != nil {
				report.Retries = retries
				report.Elapsed = time.Since(started)
				return report, err
			}
			state = StateObserved

		case StateObserved:
			obs, err := e.observer.Observe(ctx, target)
			if err != nil {
				if ctx.Err() != nil {
					report.Retries = retries
					report.Elapsed = time.Since(started)
					return report, ctx.Err()
				}
				log.Warn("Observation failed, treating pass as missed", zap.Error(err))
				state = StateRetry
				continue
			}
			report.Final = obs
			if met(obs, want) {
				state = StateTargetMet
			} else {
				state = StateEnforcing
			}

		case StateTargetMet:
			log.Debug("Control already in wanted state, confirming it holds")
			state = StatePersistCheck

		case StateEnforcing:
			kind, flipped, err := e.enforceOnce(ctx, target, want, log)
			if err != nil {
				report.Retries = retries
				report.Elapsed = time.Since(started)
				return report, err
			}
			if flipped {
				report.Strategy = kind
				state = StatePersistCheck
			} else {
				log.Debug("No strategy produced the wanted state")
				state = StateRetry
			}

		case StatePersistCheck:
			if err := e.executor.Sleep(ctx, e.config.PersistDelay); err != nil {
				report.Retries = retries
				report.Elapsed = time.Since(started)
				return report, err
			}
			obs, err := e.observer.Observe(ctx, target)
			if err != nil {
				if ctx.Err() != nil {
					report.Retries = retries
					report.Elapsed = time.Since(started)
					return report, ctx.Err()
				}
				log.Warn("Persist check could not re-observe", zap.Error(err))
				state = StateRetry
				continue
			}
			report.Final = obs
			if met(obs, want) {
				state = StateDone
			} else {
				log.Warn("Control reverted after enforcement",
					zap.Bool("resolved", obs.ResolvedState),
					zap.String("confidence", string(obs.Confidence)),
				)
				state = StateRetry
			}

		case StateRetry:
			if retries >= e.config.MaxRetries {
				report.Outcome = OutcomeExhausted
				report.Retries = retries
				report.Elapsed = time.Since(started)
				return report, fmt.Errorf("control %q: %w", target.Input, schemas.ErrEnforcementExhausted)
			}
			backoff := e.config.RetryBackoff << retries
			retries++
			log.Info("Retrying enforcement",
				zap.Int("retry", retries),
				zap.Duration("backoff", backoff),
			)
			if err := e.executor.Sleep(ctx, backoff); err != nil {
				report.Retries = retries
				report.Elapsed = time.Since(started)
				return report, err
			}
			state = StateStableWait

		case StateDone:
			if report.Strategy == "" {
				report.Outcome = OutcomeAlreadySet
			} else {
				report.Outcome = OutcomeEnforced
			}
			report.Retries = retries
			report.Elapsed = time.Since(started)
			if report.Final.Assumed {
				log.Warn("Control state was never readable, proceeding on the assume-checked policy")
			}
			log.Debug("Enforcement finished",
				zap.String("outcome", string(report.Outcome)),
				zap.String("strategy", string(report.Strategy)),
				zap.Int("retries", report.Retries),
			)
			return report, nil

		default:
			report.Retries = retries
			report.Elapsed = time.Since(started)
			return report, fmt.Errorf("enforcer entered unknown state %q", state)
		}
	}
}

// met reports whether the observation satisfies the wanted state firmly
// enough to act on. Low confidence only passes on the assume-checked
// fallback, which by policy must not trigger a blind click.
func met(obs schemas.ControlObservation, want bool) bool {
	if obs.ResolvedState != want {
		return false
	}
	return obs.Confidence != schemas.ConfidenceLow || obs.Assumed
}

// enforceOnce scrolls the control into view and walks the strategy ladder,
// re-observing after every strategy. Returns the strategy that produced the
// wanted state, or flipped=false when the whole ladder missed. Only context
// cancellation is returned as an error; individual strategy failures are
// logged and skipped.
func (e *Enforcer) enforceOnce(ctx context.Context, target ControlTarget, want bool, log *zap.Logger) (StrategyKind, bool, error) {
	if err := e.controller.ScrollIntoView(ctx, target.Input); err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		log.Debug("Scroll into view failed, interacting anyway", zap.Error(err))
	}

	for _, kind := range e.ladder(target) {
		if err := e.applyStrategy(ctx, kind, target); err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			log.Debug("Strategy failed",
				zap.String("strategy", string(kind)),
				zap.Error(err),
			)
			continue
		}

		// Give the page a beat to process the event before re-reading.
		if err := e.controller.CognitivePause(ctx, 150, 40); err != nil {
			return "", false, err
		}

		obs, err := e.observer.Observe(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			log.Debug("Re-observation after strategy failed",
				zap.String("strategy", string(kind)),
				zap.Error(err),
			)
			continue
		}
		if met(obs, want) {
			log.Debug("Strategy landed", zap.String("strategy", string(kind)))
			return kind, true, nil
		}
	}
	return "", false, nil
}

// ladder builds the strategy order for one pass. The label click leads when
// a label selector exists; the order is shuffled per pass when configured.
func (e *Enforcer) ladder(target ControlTarget) []StrategyKind {
	kinds := make([]StrategyKind, 0, 3)
	if target.Label != "" {
		kinds = append(kinds, StrategyLabelClick)
	}
	kinds = append(kinds, StrategyPointerPair, StrategyScriptClick)

	if e.config.RandomizeStrategies && len(kinds) > 1 {
		e.rng.Shuffle(len(kinds), func(i, j int) {
			kinds[i], kinds[j] = kinds[j], kinds[i]
		})
	}
	return kinds
}

func (e *Enforcer) applyStrategy(ctx context.Context, kind StrategyKind, target ControlTarget) error {
	switch kind {
	case StrategyLabelClick:
		return e.controller.IntelligentClick(ctx, target.Label, nil)
	case StrategyPointerPair:
		return e.pointerPair(ctx, target.Input)
	case StrategyScriptClick:
		return e.scriptClick(ctx, target.Input)
	}
	return fmt.Errorf("unknown strategy %q", kind)
}

// pointerPair approaches the element with the pointer model, then dispatches
// a bare press/release pair at its center. Some wrappers swallow the label
// click but still honor raw pointer events on the input itself.
func (e *Enforcer) pointerPair(ctx context.Context, selector string) error {
	geo, err := e.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pointer pair: geometry retrieval failed for %q: %w", selector, err)
	}
	if geo == nil || len(geo.Vertices) < 8 {
		return fmt.Errorf("pointer pair: %q has no usable geometry", selector)
	}
	centerX := (geo.Vertices[0] + geo.Vertices[2] + geo.Vertices[4] + geo.Vertices[6]) / 4
	centerY := (geo.Vertices[1] + geo.Vertices[3] + geo.Vertices[5] + geo.Vertices[7]) / 4

	// Best effort; the raw pair below carries its own coordinates.
	if err := e.controller.MoveTo(ctx, selector, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Debug("Pointer approach failed before raw pair",
			zap.String("selector", selector),
			zap.Error(err),
		)
	}

	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          centerX,
		Y:          centerY,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}
	if err := e.executor.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}

	hold := time.Duration(60+e.rng.Intn(50)) * time.Millisecond
	if err := e.executor.Sleep(ctx, hold); err != nil {
		return err
	}

	release := schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          centerX,
		Y:          centerY,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	}
	return e.executor.DispatchMouseEvent(ctx, release)
}

func (e *Enforcer) scriptClick(ctx context.Context, selector string) error {
	raw, err := e.executor.ExecuteScript(ctx, scriptClickJS, []interface{}{selector})
	if err != nil {
		return fmt.Errorf("script click failed: %w", err)
	}
	var clicked bool
	if err := jsonAPI.Unmarshal(raw, &clicked); err != nil {
		return fmt.Errorf("script click returned malformed result: %w", err)
	}
	if !clicked {
		return fmt.Errorf("script click: %q: %w", selector, schemas.ErrElementNotFound)
	}
	return nil
}

// stabilityProbe mirrors the object returned by stability.js.
type stabilityProbe struct {
	Installed bool    `json:"installed"`
	Observing bool    `json:"observing"`
	QuietMs   float64 `json:"quietMs"`
}

// awaitStability blocks until the watched region has gone SettleQuiet with
// no mutations, or the poll budget implied by SettleCeiling runs out.
// Hitting the ceiling is not a failure; hydration that never settles is
// exactly what the persist check guards against. Errors are only returned
// for context cancellation.
func (e *Enforcer) awaitStability(ctx context.Context, target ControlTarget, log *zap.Logger) error {
	region := target.regionSelector()
	token := fmt.Sprintf("dk-stab-%d-%d", time.Now().UnixNano(), e.rng.Int63())

	install, err := e.pollStability(ctx, region, token, false)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Stability bridge unavailable, using a fixed settle wait", zap.Error(err))
		return e.executor.Sleep(ctx, e.config.SettleQuiet)
	}
	defer e.disconnectStability(ctx, region, token)

	if !install.Observing {
		log.Debug("MutationObserver rejected, using a fixed settle wait")
		return e.executor.Sleep(ctx, e.config.SettleQuiet)
	}

	maxPolls := int(e.config.SettleCeiling / e.config.PollInterval)
	if maxPolls < 1 {
		maxPolls = 1
	}
	for i := 0; i < maxPolls; i++ {
		if err := e.executor.Sleep(ctx, e.config.PollInterval); err != nil {
			return err
		}
		probe, err := e.pollStability(ctx, region, token, false)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Stability poll failed, proceeding", zap.Error(err))
			return nil
		}
		if time.Duration(probe.QuietMs)*time.Millisecond >= e.config.SettleQuiet {
			return nil
		}
	}
	log.Debug("Region still mutating at settle ceiling, proceeding anyway")
	return nil
}

func (e *Enforcer) pollStability(ctx context.Context, region, token string, done bool) (stabilityProbe, error) {
	var probe stabilityProbe
	raw, err := e.executor.ExecuteScript(ctx, stabilityBridgeJS, []interface{}{region, token, done})
	if err != nil {
		return probe, fmt.Errorf("stability bridge failed: %w", err)
	}
	trimmed := string(raw)
	if trimmed == "" || trimmed == "null" || trimmed == "undefined" {
		return probe, fmt.Errorf("stability bridge returned no result")
	}
	if err := jsonAPI.Unmarshal(raw, &probe); err != nil {
		return probe, fmt.Errorf("stability bridge returned malformed result: %w", err)
	}
	return probe, nil
}

// disconnectStability tears the observer down. Best effort; navigation wipes
// the bridge anyway.
func (e *Enforcer) disconnectStability(ctx context.Context, region, token string) {
	_, _ = e.pollStability(ctx, region, token, true)
}
