package hunter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
)

// scriptedRuns hands out contactors whose outcomes are scripted per
// listing id and records how the lanes interleave.
type scriptedRuns struct {
	mu sync.Mutex

	// delay stretches every Run so overlap becomes observable.
	delay      time.Duration
	errByID    map[string]error
	statusByID map[string]schemas.AttemptStatus
	factoryErr map[string]error

	builds []string // platform per factory call
	runs   []string // platform/listing, in start order

	active           int
	maxActive        int
	activeByPlatform map[string]int
	maxByPlatform    map[string]int
}

func newScriptedRuns() *scriptedRuns {
	return &scriptedRuns{
		errByID:          make(map[string]error),
		statusByID:       make(map[string]schemas.AttemptStatus),
		factoryErr:       make(map[string]error),
		activeByPlatform: make(map[string]int),
		maxByPlatform:    make(map[string]int),
	}
}

func (s *scriptedRuns) factory(_ context.Context, site *platform.Site) (Contactor, error) {
	s.mu.Lock()
	s.builds = append(s.builds, site.Name)
	err := s.factoryErr[site.Name]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &scriptedContactor{script: s, platform: site.Name}, nil
}

func (s *scriptedRuns) enter(platform, listingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, platform+"/"+listingID)
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.activeByPlatform[platform]++
	if s.activeByPlatform[platform] > s.maxByPlatform[platform] {
		s.maxByPlatform[platform] = s.activeByPlatform[platform]
	}
}

func (s *scriptedRuns) leave(platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	s.activeByPlatform[platform]--
}

func (s *scriptedRuns) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

func (s *scriptedRuns) built() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.builds...)
}

func (s *scriptedRuns) peakActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *scriptedRuns) peakOn(platform string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxByPlatform[platform]
}

type scriptedContactor struct {
	script   *scriptedRuns
	platform string
}

func (c *scriptedContactor) Run(ctx context.Context, listing schemas.Listing) (schemas.ContactAttempt, error) {
	s := c.script
	s.enter(c.platform, listing.ID)
	defer s.leave(c.platform)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return terminalAttempt(listing, schemas.StatusFailed, ctx.Err()), ctx.Err()
		}
	}

	s.mu.Lock()
	status, scripted := s.statusByID[listing.ID]
	runErr := s.errByID[listing.ID]
	s.mu.Unlock()

	if runErr != nil {
		return terminalAttempt(listing, schemas.StatusFailed, runErr), runErr
	}
	if !scripted {
		status = schemas.StatusSubmitted
	}
	return terminalAttempt(listing, status, nil), nil
}

func terminalAttempt(listing schemas.Listing, status schemas.AttemptStatus, cause error) schemas.ContactAttempt {
	now := time.Now()
	attempt := schemas.ContactAttempt{
		ID:         uuid.New().String(),
		ListingID:  listing.ID,
		Platform:   listing.Platform,
		StartedAt:  now,
		FinishedAt: now,
		Status:     status,
	}
	if cause != nil {
		attempt.LastError = cause.Error()
	}
	return attempt
}

// recordingJournal captures journaled attempts for assertions.
type recordingJournal struct {
	mu       sync.Mutex
	attempts []schemas.ContactAttempt
}

func (j *recordingJournal) Record(attempt schemas.ContactAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, attempt)
	return nil
}

func (j *recordingJournal) recorded() []schemas.ContactAttempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]schemas.ContactAttempt(nil), j.attempts...)
}
