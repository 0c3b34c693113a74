package hunter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/ledger"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBatchFixture(t *testing.T) (*Hunter, *scriptedRuns, *recordingJournal, schemas.Ledger) {
	t.Helper()

	script := newScriptedRuns()
	journal := &recordingJournal{}
	store := ledger.NewMemory()

	cfg := config.NewDefaultConfig()
	cfg.Hunter.Concurrency = 4
	// Effectively unspaced; individual tests dial politeness back up.
	cfg.Hunter.AttemptsPerMinute = 600000

	h, err := New(Params{
		Registry: platform.DefaultRegistry(),
		Ledger:   store,
		Journal:  journal,
		Config:   cfg,
		Logger:   zaptest.NewLogger(t),
		Factory:  script.factory,
	})
	require.NoError(t, err)
	return h, script, journal, store
}

func TestNewRequiresCoreCollaborators(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)

	cfg := config.NewDefaultConfig()
	reg := platform.DefaultRegistry()
	store := ledger.NewMemory()

	// Without a custom factory the hunter needs the browser collaborators.
	_, err = New(Params{Registry: reg, Ledger: store, Config: cfg})
	require.Error(t, err)

	script := newScriptedRuns()
	h, err := New(Params{Registry: reg, Ledger: store, Config: cfg, Factory: script.factory})
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestHuntContactsEveryResolvedListing(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
		"https://www.immobilienscout24.de/expose/777001",
		"https://www.willhaben.at/iad/immobilien/d/mietwohnungen/wien/stadtwohnung-661234",
		"https://www.wg-gesucht.de/wohnungen-in-Wien.1.123456.html",
	})
	require.NoError(t, err)

	require.Equal(t, 5, summary.Submitted)
	require.Zero(t, summary.Skipped)
	require.Zero(t, summary.Failed)
	require.Equal(t, 5, summary.Total())
	require.Len(t, summary.Attempts, 5)

	require.ElementsMatch(t, []string{
		"derstandard/9001",
		"derstandard/9002",
		"immoscout/777001",
		"willhaben/stadtwohnung-661234",
		"wg-gesucht/123456",
	}, script.started())
}

func TestHuntFiltersAlreadyContactedListings(t *testing.T) {
	h, script, journal, store := newBatchFixture(t)
	require.NoError(t, store.MarkContacted(context.Background(), "9002", "derstandard"))

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
		"https://immobilien.derstandard.at/detail/9003",
	})
	require.NoError(t, err)

	require.Equal(t, 2, summary.Submitted)
	require.Equal(t, 1, summary.Skipped)
	require.NotContains(t, script.started(), "derstandard/9002")

	// The filtered listing still leaves a journal trace.
	recorded := journal.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, "9002", recorded[0].ListingID)
	require.Equal(t, schemas.StatusSkippedDuplicate, recorded[0].Status)
	require.False(t, recorded[0].FinishedAt.IsZero())
}

func TestHuntDropsDuplicateURLsInOneBatch(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Submitted)
	require.Equal(t, []string{"derstandard/9001", "derstandard/9002"}, script.started())
}

func TestHuntFailsOnUnknownHostBeforeAnyAttempt(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://listings.example.org/flat/1",
	})
	require.ErrorIs(t, err, platform.ErrUnknownPlatform)
	require.Zero(t, summary.Total())
	require.Empty(t, script.built())
}

func TestHuntKeepsSamePlatformAttemptsSequential(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	script.delay = 5 * time.Millisecond

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
		"https://immobilien.derstandard.at/detail/9003",
		"https://immobilien.derstandard.at/detail/9004",
	})
	require.NoError(t, err)
	require.Equal(t, 4, summary.Submitted)

	// One lane per portal: attempts on it never overlap and run in
	// batch order. The machine is rebuilt per attempt so the session
	// manager can recycle between listings.
	require.Equal(t, 1, script.peakOn("derstandard"))
	require.Equal(t, []string{
		"derstandard/9001",
		"derstandard/9002",
		"derstandard/9003",
		"derstandard/9004",
	}, script.started())
	require.Len(t, script.built(), 4)
}

func TestHuntRunsDistinctPlatformsInParallel(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	script.delay = 100 * time.Millisecond

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://www.immobilienscout24.de/expose/777001",
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Submitted)
	require.Equal(t, 2, script.peakActive())
}

func TestHuntBoundsLaneConcurrency(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	h.cfg.Hunter.Concurrency = 1
	script.delay = 20 * time.Millisecond

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://www.immobilienscout24.de/expose/777001",
		"https://www.wg-gesucht.de/wohnungen-in-Wien.1.123456.html",
	})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Submitted)
	require.Equal(t, 1, script.peakActive())
}

func TestHuntAggregatesMixedOutcomesAndKeepsLaneAlive(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	script.errByID["9002"] = errors.New("contact form never appeared")
	script.statusByID["9003"] = schemas.StatusSkippedDryRun

	summary, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
		"https://immobilien.derstandard.at/detail/9003",
	})
	// A failed attempt is a verdict, not a batch error; the lane moves on.
	require.NoError(t, err)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 3, summary.Total())
	require.Contains(t, script.started(), "derstandard/9003")
}

func TestHuntAbortsWhenLanePreparationFails(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	cause := errors.New("browser went away")
	script.factoryErr["derstandard"] = cause

	_, err := h.Hunt(context.Background(), []string{
		"https://immobilien.derstandard.at/detail/9001",
	})
	require.ErrorIs(t, err, cause)
	require.ErrorContains(t, err, "preparing derstandard")
}

func TestHuntStopsWhenCancelled(t *testing.T) {
	h, script, _, _ := newBatchFixture(t)
	script.delay = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(30*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	start := time.Now()
	summary, err := h.Hunt(ctx, []string{
		"https://immobilien.derstandard.at/detail/9001",
		"https://immobilien.derstandard.at/detail/9002",
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)

	// The interrupted attempt is still accounted for; the rest of the
	// lane never starts.
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Attempts, 1)
}

func TestLimiterIsCachedPerPlatform(t *testing.T) {
	h, _, _, _ := newBatchFixture(t)
	h.cfg.Hunter.AttemptsPerMinute = 30

	first := h.limiter("willhaben")
	require.Same(t, first, h.limiter("willhaben"))
	require.NotSame(t, first, h.limiter("derstandard"))

	require.InDelta(t, 0.5, float64(first.Limit()), 1e-9)
	require.Equal(t, 1, first.Burst())
}
