package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// Memory keeps contacts in process memory. Backs tests and throwaway
// runs that must not touch a persistent store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]schemas.LedgerEntry
	order   []string
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]schemas.LedgerEntry)}
}

func (m *Memory) HasContacted(ctx context.Context, listingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[listingID]
	return ok, nil
}

func (m *Memory) MarkContacted(ctx context.Context, listingID, platform string) error {
	_, err := m.CheckAndMark(ctx, listingID, platform)
	return err
}

func (m *Memory) CheckAndMark(ctx context.Context, listingID, platform string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[listingID]; ok {
		return true, nil
	}
	now := time.Now().UTC()
	m.entries[listingID] = schemas.LedgerEntry{
		ListingID:   listingID,
		Platform:    platform,
		ContactedAt: now,
		Details:     entryDetails(listingID, platform, now),
	}
	m.order = append(m.order, listingID)
	return false, nil
}

func (m *Memory) Entries(ctx context.Context) ([]schemas.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]schemas.LedgerEntry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.entries[id])
	}
	return entries, nil
}

func (m *Memory) Close() error { return nil }
