package schemas

import (
	"encoding/json"
	"time"
)

// AttemptStatus describes the lifecycle state of a contact attempt.
type AttemptStatus string

const (
	StatusPending          AttemptStatus = "pending"
	StatusSubmitted        AttemptStatus = "submitted"
	StatusFailed           AttemptStatus = "failed"
	StatusSkippedDuplicate AttemptStatus = "skipped-duplicate"
	StatusSkippedDryRun    AttemptStatus = "skipped-dry-run"
)

// Terminal reports whether the status is an end state of the attempt lifecycle.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusFailed, StatusSkippedDuplicate, StatusSkippedDryRun:
		return true
	}
	return false
}

// Listing identifies one rental listing to be contacted.
type Listing struct {
	ID       string            `json:"id"`
	Platform string            `json:"platform"`
	URL      string            `json:"url"`
	// Fields carries listing metadata (title, address, ...) available for
	// message template expansion. May be empty.
	Fields map[string]string `json:"fields,omitempty"`
}

// ContactAttempt tracks a single listing through the submission lifecycle.
// It is created when the orchestrator picks up a listing and mutated until a
// terminal status is reached.
type ContactAttempt struct {
	ID         string        `json:"id"`
	ListingID  string        `json:"listing_id"`
	Platform   string        `json:"platform"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error,omitempty"`
	// SnapshotPath points at the diagnostic snapshot captured on failure, if
	// capture succeeded. Empty otherwise.
	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// LedgerEntry is the persistent record that a listing has been contacted.
// Uniqueness on ListingID is the core invariant of the ledger.
type LedgerEntry struct {
	ListingID   string    `json:"listing_id"`
	Platform    string    `json:"platform"`
	ContactedAt time.Time `json:"contacted_at"`
	// Details is an opaque JSON blob preserved alongside the row for
	// reporting and external tooling.
	Details json.RawMessage `json:"details,omitempty"`
}

// ContactEvent is emitted once per confirmed successful submission. Snapshot
// delivery and notification formatting are the consumer's concern.
type ContactEvent struct {
	ListingID      string    `json:"listing_id"`
	Platform       string    `json:"platform"`
	SubmittedAt    time.Time `json:"submitted_at"`
	SnapshotHandle string    `json:"snapshot_handle,omitempty"`
}
