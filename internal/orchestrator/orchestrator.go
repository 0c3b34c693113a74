// Package orchestrator runs one contact attempt end to end. It owns the
// form state machine: navigation, locating the contact form, populating
// it through the humanoid layer, enforcing checkbox states against
// hydration races, and submitting with duplicate and captcha gates in
// front of the click. Every wait inside the machine is bounded.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/doorknock-cli/internal/captcha"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/controls"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
	"github.com/xkilldash9x/doorknock-cli/internal/profile"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver is the browser surface one attempt consumes. A session.Session
// satisfies it; tests substitute a scripted fake.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Controller() humanoid.Controller
	Executor() humanoid.Executor
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Journal records finished attempts. A nil journal drops them.
type Journal interface {
	Record(attempt schemas.ContactAttempt) error
}

// runState names a step of the contact machine.
type runState string

const (
	StateNavigate         runState = "NAVIGATE"
	StateLocateForm       runState = "LOCATE_FORM"
	StatePopulateFields   runState = "POPULATE_FIELDS"
	StateEnforceControls  runState = "ENFORCE_CONTROLS"
	StateAwaitSubmitReady runState = "AWAIT_SUBMIT_READY"
	StateSubmit           runState = "SUBMIT"
	StateVerifyResult     runState = "VERIFY_RESULT"
)

// Internal outcomes that end a run without being failures.
var (
	errDryRun           = errors.New("dry run stops before submission")
	errClaimedElsewhere = errors.New("listing was claimed by a concurrent run")
)

// Params collects the collaborators of one orchestrator. Driver, Site,
// Profile, Ledger and Config are required.
type Params struct {
	Driver  Driver
	Site    *platform.Site
	Profile *profile.Profile
	Ledger  schemas.Ledger
	// Gate defaults to a gate over the site's challenge selectors.
	Gate    *captcha.Gate
	Journal Journal
	// Sink receives completed-contact events. Nil drops them.
	Sink   schemas.EventSink
	Config *config.Config
	Logger *zap.Logger
}

// Orchestrator sequences contact attempts for one platform on one
// session. Not safe for concurrent use; each session gets its own.
type Orchestrator struct {
	driver     Driver
	controller humanoid.Controller
	executor   humanoid.Executor
	site       *platform.Site
	profile    *profile.Profile
	ledger     schemas.Ledger
	gate       *captcha.Gate
	journal    Journal
	sink       schemas.EventSink

	cfg         config.ContactConfig
	captchaMode string
	logger      *zap.Logger

	enforcer *controls.Enforcer
}

func New(p Params) (*Orchestrator, error) {
	if p.Driver == nil || p.Site == nil || p.Profile == nil || p.Ledger == nil || p.Config == nil {
		return nil, fmt.Errorf("orchestrator requires a driver, site, profile, ledger and config")
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	logger := p.Logger.Named("orchestrator").With(zap.String("platform", p.Site.Name))

	executor := p.Driver.Executor()
	controller := p.Driver.Controller()

	observer := controls.NewObserver(executor, logger.Named("observer"))
	enforcer := controls.NewEnforcer(controller, executor, observer, enforcerConfig(p.Config.Contact), logger.Named("enforcer"))

	gate := p.Gate
	if gate == nil {
		gate = captcha.NewGate(executor, p.Site.CaptchaSelectors, nil, p.Config.Captcha, logger)
	}

	return &Orchestrator{
		driver:      p.Driver,
		controller:  controller,
		executor:    executor,
		site:        p.Site,
		profile:     p.Profile,
		ledger:      p.Ledger,
		gate:        gate,
		journal:     p.Journal,
		sink:        p.Sink,
		cfg:         p.Config.Contact,
		captchaMode: p.Config.Captcha.Mode,
		logger:      logger,
		enforcer:    enforcer,
	}, nil
}

// enforcerConfig maps the contact timing envelope onto the enforcement
// machine. The poll cadence stays at the enforcer's own default.
func enforcerConfig(c config.ContactConfig) controls.EnforcerConfig {
	return controls.EnforcerConfig{
		SettleQuiet:         c.StabilizeSettle,
		SettleCeiling:       c.StabilizeCeiling,
		PersistDelay:        c.PersistCheckDelay,
		MaxRetries:          c.EnforceMaxAttempts,
		RetryBackoff:        c.EnforceBackoffBase,
		RandomizeStrategies: c.ShuffleStrategies,
	}
}

// runContext carries what the steps learn about the page as the machine
// advances: the chosen form variant and the submit control.
type runContext struct {
	listing schemas.Listing
	values  map[string]string
	form    *platform.FormSpec
	submit  string
}

// Run drives one listing through the contact machine and returns the
// terminal attempt. The error is non-nil only for failed attempts and
// carries the cause for retry classification; skips return a nil error.
func (o *Orchestrator) Run(ctx context.Context, listing schemas.Listing) (schemas.ContactAttempt, error) {
	attempt := schemas.ContactAttempt{
		ID:        uuid.New().String(),
		ListingID: listing.ID,
		Platform:  listing.Platform,
		StartedAt: time.Now(),
		Status:    schemas.StatusPending,
	}
	log := o.logger.With(
		zap.String("listing_id", listing.ID),
		zap.String("attempt_id", attempt.ID),
	)

	// The duplicate pre-check runs before any navigation side effect.
	already, err := o.ledger.HasContacted(ctx, listing.ID)
	if err != nil {
		return o.fail(ctx, attempt, fmt.Errorf("ledger pre-check: %w", err), log)
	}
	if already {
		log.Info("Listing already contacted, skipping")
		return o.skip(attempt, schemas.StatusSkippedDuplicate, log), nil
	}

	run := &runContext{listing: listing, values: o.profile.Values(listing)}

	steps := []struct {
		state runState
		fn    func(context.Context, *runContext, *zap.Logger) error
	}{
		{StateNavigate, o.navigate},
		{StateLocateForm, o.locateForm},
		{StatePopulateFields, o.populateFields},
		{StateEnforceControls, o.enforceControls},
		{StateAwaitSubmitReady, o.awaitSubmitReady},
		{StateSubmit, o.submit},
		{StateVerifyResult, o.verifyResult},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, attempt, err, log)
		}
		log.Debug("Contact step", zap.String("state", string(step.state)))
		if err := step.fn(ctx, run, log); err != nil {
			switch {
			case errors.Is(err, errDryRun):
				log.Info("Dry run complete, submission withheld")
				return o.skip(attempt, schemas.StatusSkippedDryRun, log), nil
			case errors.Is(err, errClaimedElsewhere):
				log.Info("Listing claimed by a concurrent run, skipping")
				return o.skip(attempt, schemas.StatusSkippedDuplicate, log), nil
			default:
				return o.fail(ctx, attempt, fmt.Errorf("%s: %w", step.state, err), log)
			}
		}
	}

	attempt.Status = schemas.StatusSubmitted
	attempt.FinishedAt = time.Now()

	// The confirmation page snapshot rides along on the event so archival
	// consumers can keep proof of the submission.
	handle := o.captureSnapshot(ctx, attempt, log)
	if o.sink != nil {
		o.sink.ContactCompleted(ctx, schemas.ContactEvent{
			ListingID:      attempt.ListingID,
			Platform:       attempt.Platform,
			SubmittedAt:    attempt.FinishedAt,
			SnapshotHandle: handle,
		})
	}
	o.record(attempt, log)
	log.Info("Contact submitted", zap.Duration("elapsed", attempt.FinishedAt.Sub(attempt.StartedAt)))
	return attempt, nil
}

func (o *Orchestrator) skip(attempt schemas.ContactAttempt, status schemas.AttemptStatus, log *zap.Logger) schemas.ContactAttempt {
	attempt.Status = status
	attempt.FinishedAt = time.Now()
	o.record(attempt, log)
	return attempt
}

// fail closes the attempt, captures a diagnostic snapshot and journals
// the outcome. The cause is returned for retry classification.
func (o *Orchestrator) fail(ctx context.Context, attempt schemas.ContactAttempt, cause error, log *zap.Logger) (schemas.ContactAttempt, error) {
	attempt.Status = schemas.StatusFailed
	attempt.FinishedAt = time.Now()
	attempt.LastError = cause.Error()
	attempt.SnapshotPath = o.captureSnapshot(ctx, attempt, log)

	o.record(attempt, log)
	log.Error("Contact attempt failed",
		zap.Error(cause),
		zap.String("snapshot", attempt.SnapshotPath),
	)
	return attempt, cause
}

func (o *Orchestrator) record(attempt schemas.ContactAttempt, log *zap.Logger) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(attempt); err != nil {
		log.Warn("Journal write failed", zap.Error(err))
	}
}

const snapshotTimeout = 5 * time.Second

// captureSnapshot writes a screenshot and the rendered document next to
// each other and returns the screenshot path. Best effort: snapshots
// must never turn a verdict into a different one, so every failure here
// only logs. It runs detached from the attempt's context so a cancelled
// run can still leave evidence behind.
func (o *Orchestrator) captureSnapshot(ctx context.Context, attempt schemas.ContactAttempt, log *zap.Logger) string {
	if o.cfg.SnapshotDir == "" {
		return ""
	}
	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()

	if err := os.MkdirAll(o.cfg.SnapshotDir, 0o755); err != nil {
		log.Warn("Snapshot directory unavailable", zap.Error(err))
		return ""
	}
	base := filepath.Join(o.cfg.SnapshotDir, fmt.Sprintf("%s-%s", attempt.ListingID, shortID(attempt.ID)))

	var path string
	if shot, err := o.driver.Screenshot(snapCtx); err != nil {
		log.Warn("Screenshot capture failed", zap.Error(err))
	} else if err := os.WriteFile(base+".png", shot, 0o644); err != nil {
		log.Warn("Screenshot write failed", zap.Error(err))
	} else {
		path = base + ".png"
	}

	if html, err := o.driver.HTML(snapCtx); err != nil {
		log.Warn("Document capture failed", zap.Error(err))
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		log.Warn("Document write failed", zap.Error(err))
	} else if path == "" {
		path = base + ".html"
	}
	return path
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
