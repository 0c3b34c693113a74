package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contacted (
	listing_id   TEXT PRIMARY KEY,
	platform     TEXT NOT NULL,
	contacted_at TIMESTAMPTZ NOT NULL,
	details      JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_contacted_platform ON contacted(platform);
`

// DBPool abstracts pgxpool.Pool so the backend can run against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Postgres is the shared-ledger backend for fleets of runners. The
// insert-if-absent rides on ON CONFLICT DO NOTHING, so the critical
// section lives in the database, not in this process.
type Postgres struct {
	pool   DBPool
	logger *zap.Logger
}

// NewPostgres verifies the connection and ensures the schema exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger.Named("ledger")}, nil
}

func (l *Postgres) HasContacted(ctx context.Context, listingID string) (bool, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT 1 FROM contacted WHERE listing_id = $1`, listingID)
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("read ledger row: %w", err)
	}
	return found, nil
}

func (l *Postgres) MarkContacted(ctx context.Context, listingID, platform string) error {
	_, err := l.CheckAndMark(ctx, listingID, platform)
	return err
}

func (l *Postgres) CheckAndMark(ctx context.Context, listingID, platform string) (bool, error) {
	now := time.Now().UTC()
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO contacted (listing_id, platform, contacted_at, details)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (listing_id) DO NOTHING`,
		listingID, platform, now, entryDetails(listingID, platform, now))
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

func (l *Postgres) Entries(ctx context.Context) ([]schemas.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT listing_id, platform, contacted_at, details
		 FROM contacted ORDER BY contacted_at ASC, listing_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []schemas.LedgerEntry
	for rows.Next() {
		var entry schemas.LedgerEntry
		var details []byte
		if err := rows.Scan(&entry.ListingID, &entry.Platform, &entry.ContactedAt, &details); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entry.Details = details
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

func (l *Postgres) Close() error {
	l.pool.Close()
	return nil
}
