package schemas

import "context"

// Ledger is the persistent idempotency store consulted before a submission
// and written after a confirmed success. Implementations must guarantee at
// most one entry per listing ID even under concurrent runs.
type Ledger interface {
	// HasContacted reports whether an entry exists for the listing.
	HasContacted(ctx context.Context, listingID string) (bool, error)
	// MarkContacted records the listing as contacted. Marking twice is a
	// no-op, not an error.
	MarkContacted(ctx context.Context, listingID, platform string) error
	// CheckAndMark atomically checks for an existing entry and inserts one if
	// absent. already is true when the entry pre-existed; the check and the
	// insert happen in a single critical section.
	CheckAndMark(ctx context.Context, listingID, platform string) (already bool, err error)
	// Entries returns all recorded entries in contact order, oldest first.
	Entries(ctx context.Context) ([]LedgerEntry, error)
	// Close releases the underlying store.
	Close() error
}

// EventSink consumes completed-contact events. Delivery (chat messages,
// archival) is entirely the sink's concern; a nil sink is valid and means
// events are dropped.
type EventSink interface {
	ContactCompleted(ctx context.Context, event ContactEvent)
}
