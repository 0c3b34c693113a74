// Package hunter drives a batch of listing URLs through the contact
// machine. Listings are resolved to their portals up front, filtered
// against the ledger, then processed in per-platform lanes: one
// goroutine per portal so a browser session is never shared between
// concurrent attempts, with a politeness limiter spacing attempts on
// the same portal.
package hunter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/orchestrator"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
	"github.com/xkilldash9x/doorknock-cli/internal/profile"
)

// SessionSource hands out the live browser session for a platform. The
// browser manager satisfies it; tests substitute a fake.
type SessionSource interface {
	Session(ctx context.Context, platform string) (*session.Session, error)
}

// Contactor runs a single listing through one contact attempt. The
// orchestrator satisfies it.
type Contactor interface {
	Run(ctx context.Context, listing schemas.Listing) (schemas.ContactAttempt, error)
}

// ContactorFactory builds the per-attempt machine for a portal. The
// default factory acquires the platform session, walks the login flow
// when the portal demands one, and wires an orchestrator over it.
type ContactorFactory func(ctx context.Context, site *platform.Site) (Contactor, error)

// Summary aggregates the terminal outcomes of one batch.
type Summary struct {
	Submitted int
	Skipped   int
	Failed    int

	// Attempts holds every terminal attempt in completion order.
	Attempts []schemas.ContactAttempt
}

// Total counts every listing the batch produced a verdict for.
func (s Summary) Total() int {
	return s.Submitted + s.Skipped + s.Failed
}

func (s *Summary) add(attempt schemas.ContactAttempt) {
	s.Attempts = append(s.Attempts, attempt)
	switch attempt.Status {
	case schemas.StatusSubmitted:
		s.Submitted++
	case schemas.StatusSkippedDuplicate, schemas.StatusSkippedDryRun:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Params collects the collaborators of one hunter. Registry, Ledger and
// Config are required; Sessions and Profile are required unless a
// Factory overrides how attempts are built.
type Params struct {
	Registry *platform.Registry
	Sessions SessionSource
	Profile  *profile.Profile
	Ledger   schemas.Ledger
	Journal  orchestrator.Journal
	// Sink receives completed-contact events. Nil drops them.
	Sink   schemas.EventSink
	Config *config.Config
	Logger *zap.Logger
	// Factory overrides attempt construction. Nil uses the orchestrator
	// over a managed platform session.
	Factory ContactorFactory
}

// Hunter fans a batch of listings out across per-platform lanes. Safe
// for a single Hunt call at a time.
type Hunter struct {
	registry *platform.Registry
	sessions SessionSource
	profile  *profile.Profile
	ledger   schemas.Ledger
	journal  orchestrator.Journal
	sink     schemas.EventSink
	cfg      *config.Config
	logger   *zap.Logger
	factory  ContactorFactory

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(p Params) (*Hunter, error) {
	if p.Registry == nil || p.Ledger == nil || p.Config == nil {
		return nil, fmt.Errorf("hunter requires a registry, ledger and config")
	}
	if p.Factory == nil && (p.Sessions == nil || p.Profile == nil) {
		return nil, fmt.Errorf("hunter requires a session source and profile without a custom factory")
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	h := &Hunter{
		registry: p.Registry,
		sessions: p.Sessions,
		profile:  p.Profile,
		ledger:   p.Ledger,
		journal:  p.Journal,
		sink:     p.Sink,
		cfg:      p.Config,
		logger:   p.Logger.Named("hunter"),
		factory:  p.Factory,
		limiters: make(map[string]*rate.Limiter),
	}
	if h.factory == nil {
		h.factory = h.buildContactor
	}
	return h, nil
}

// lane is the ordered work of one portal.
type lane struct {
	site     *platform.Site
	listings []schemas.Listing
}

// Hunt resolves, filters and contacts the given listing URLs and
// returns the aggregate summary. Resolution failures abort the batch
// before any browser work; per-listing attempt failures are recorded in
// the summary and do not stop the lane. The returned error is non-nil
// only when the batch could not run at all or was cancelled.
func (h *Hunter) Hunt(ctx context.Context, urls []string) (Summary, error) {
	lanes, skipped, err := h.prepare(ctx, urls)
	if err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	for _, attempt := range skipped {
		summary.add(attempt)
	}
	if len(lanes) == 0 {
		return summary, nil
	}

	limit := h.cfg.Hunter.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, ln := range lanes {
		g.Go(func() error {
			return h.runLane(gctx, ln, func(attempt schemas.ContactAttempt) {
				mu.Lock()
				summary.add(attempt)
				mu.Unlock()
			})
		})
	}
	err = g.Wait()
	h.logger.Info("Batch finished",
		zap.Int("submitted", summary.Submitted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, err
}

// prepare resolves every URL, drops duplicates inside the batch,
// filters listings the ledger already holds and groups the remainder
// into per-platform lanes. Already-contacted listings come back as
// synthesized skip attempts so the journal keeps a complete record.
func (h *Hunter) prepare(ctx context.Context, urls []string) ([]lane, []schemas.ContactAttempt, error) {
	byName := make(map[string]*lane)
	var order []string
	var skipped []schemas.ContactAttempt
	seen := make(map[string]struct{}, len(urls))

	for _, raw := range urls {
		site, listing, err := h.registry.Resolve(raw)
		if err != nil {
			return nil, nil, err
		}
		key := listing.Platform + "/" + listing.ID
		if _, dup := seen[key]; dup {
			h.logger.Debug("Duplicate listing in batch", zap.String("listing_id", listing.ID))
			continue
		}
		seen[key] = struct{}{}

		already, err := h.ledger.HasContacted(ctx, listing.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("ledger pre-check for %s: %w", listing.ID, err)
		}
		if already {
			h.logger.Info("Listing already contacted, skipping",
				zap.String("platform", listing.Platform),
				zap.String("listing_id", listing.ID),
			)
			skipped = append(skipped, h.skipAttempt(listing))
			continue
		}

		ln, ok := byName[site.Name]
		if !ok {
			ln = &lane{site: site}
			byName[site.Name] = ln
			order = append(order, site.Name)
		}
		ln.listings = append(ln.listings, listing)
	}

	lanes := make([]lane, 0, len(order))
	for _, name := range order {
		lanes = append(lanes, *byName[name])
	}
	return lanes, skipped, nil
}

// runLane processes one portal's listings sequentially. The session
// behind the lane is acquired per attempt so the manager can recycle
// stale tabs between listings without the lane noticing.
func (h *Hunter) runLane(ctx context.Context, ln lane, report func(schemas.ContactAttempt)) error {
	log := h.logger.With(zap.String("platform", ln.site.Name))
	limiter := h.limiter(ln.site.Name)

	for _, listing := range ln.listings {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		contactor, err := h.factory(ctx, ln.site)
		if err != nil {
			// A portal whose session cannot come up takes its whole lane
			// down, and with it the batch: the operator has to intervene
			// either way.
			return fmt.Errorf("preparing %s: %w", ln.site.Name, err)
		}

		attempt, err := contactor.Run(ctx, listing)
		report(attempt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if schemas.RetryableLater(err) {
				log.Warn("Attempt deferred, listing stays uncontacted",
					zap.String("listing_id", listing.ID),
					zap.Error(err),
				)
			} else {
				log.Warn("Attempt failed",
					zap.String("listing_id", listing.ID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// buildContactor is the default factory: platform session out of the
// manager, login walk when the portal needs one, orchestrator on top.
func (h *Hunter) buildContactor(ctx context.Context, site *platform.Site) (Contactor, error) {
	sess, err := h.sessions.Session(ctx, site.Name)
	if err != nil {
		return nil, fmt.Errorf("acquiring session: %w", err)
	}
	if err := h.ensureLogin(ctx, site, sess); err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Params{
		Driver:  sess,
		Site:    site,
		Profile: h.profile,
		Ledger:  h.ledger,
		Journal: h.journal,
		Sink:    h.sink,
		Config:  h.cfg,
		Logger:  h.logger,
	})
}

// ensureLogin makes sure a login-gated portal has a live authenticated
// session before any attempt runs. An expired session falls through to
// the manual login flow; probe transport failures prove nothing about
// the login and let the attempt proceed.
func (h *Hunter) ensureLogin(ctx context.Context, site *platform.Site, sess *session.Session) error {
	if !site.RequiresLogin {
		return nil
	}
	if !sess.NeedsValidation(time.Now()) {
		return nil
	}

	err := sess.Validate(ctx, site.Probe)
	if err == nil {
		return nil
	}
	if !errors.Is(err, schemas.ErrSessionExpired) {
		h.logger.Warn("Session validation inconclusive, proceeding",
			zap.String("platform", site.Name),
			zap.Error(err),
		)
		return nil
	}

	h.logger.Info("Session expired, waiting for manual login",
		zap.String("platform", site.Name),
		zap.String("login_url", site.LoginURL),
	)
	if site.LoginURL != "" {
		if err := sess.Navigate(ctx, site.LoginURL); err != nil {
			return fmt.Errorf("opening login page: %w", err)
		}
	}
	if err := sess.AwaitManualLogin(ctx, site.LoggedInSelector); err != nil {
		return fmt.Errorf("manual login on %s: %w", site.Name, err)
	}
	return nil
}

// limiter returns the politeness limiter for a platform, creating it on
// first use. Burst 1: the first attempt goes immediately, the rest are
// spaced at the configured per-minute rate.
func (h *Hunter) limiter(platform string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.limiters[platform]; ok {
		return l
	}
	perMinute := h.cfg.Hunter.AttemptsPerMinute
	if perMinute <= 0 {
		perMinute = 2
	}
	l := rate.NewLimiter(rate.Limit(perMinute/60.0), 1)
	h.limiters[platform] = l
	return l
}

// skipAttempt synthesizes the terminal record for a listing the ledger
// already holds, journaled like any other outcome.
func (h *Hunter) skipAttempt(listing schemas.Listing) schemas.ContactAttempt {
	now := time.Now()
	attempt := schemas.ContactAttempt{
		ID:         uuid.New().String(),
		ListingID:  listing.ID,
		Platform:   listing.Platform,
		StartedAt:  now,
		FinishedAt: now,
		Status:     schemas.StatusSkippedDuplicate,
	}
	if h.journal != nil {
		if err := h.journal.Record(attempt); err != nil {
			h.logger.Warn("Journal write failed", zap.Error(err))
		}
	}
	return attempt
}
