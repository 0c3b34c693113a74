package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contacted (
	listing_id   TEXT PRIMARY KEY,
	platform     TEXT NOT NULL,
	contacted_at TIMESTAMP NOT NULL,
	details      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_contacted_platform ON contacted(platform);
`

// SQLite is the default single-machine ledger backend.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (and if needed creates) the ledger database at path.
// WAL mode plus a busy timeout lets concurrent orchestrator runs share
// the file; writes are additionally funneled through one connection so
// the insert-if-absent stays a single critical section.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, errors.New("sqlite ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &SQLite{db: db, logger: logger.Named("ledger")}, nil
}

func (l *SQLite) HasContacted(ctx context.Context, listingID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM contacted WHERE listing_id = ?`, listingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

func (l *SQLite) MarkContacted(ctx context.Context, listingID, platform string) error {
	_, err := l.CheckAndMark(ctx, listingID, platform)
	return err
}

func (l *SQLite) CheckAndMark(ctx context.Context, listingID, platform string) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			l.logger.Error("Failed to roll back ledger transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO contacted (listing_id, platform, contacted_at, details)
		 VALUES (?, ?, ?, ?)`,
		listingID, platform, now, string(entryDetails(listingID, platform, now)))
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read ledger insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ledger transaction: %w", err)
	}
	return inserted == 0, nil
}

func (l *SQLite) Entries(ctx context.Context) ([]schemas.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT listing_id, platform, contacted_at, details
		 FROM contacted ORDER BY contacted_at ASC, listing_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []schemas.LedgerEntry
	for rows.Next() {
		var entry schemas.LedgerEntry
		var details string
		if err := rows.Scan(&entry.ListingID, &entry.Platform, &entry.ContactedAt, &details); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entry.Details = json.RawMessage(details)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

func (l *SQLite) Close() error {
	return l.db.Close()
}
