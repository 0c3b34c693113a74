// Package ledger persists which listings have already been contacted.
// It is the one resource shared across concurrent runs, so the
// check-and-mark primitive executes as a single critical section: two
// racing attempts for the same listing can never both pass the
// duplicate gate.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Open builds the schemas.Ledger backend selected by the storage config.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (schemas.Ledger, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return NewPostgres(ctx, pool, logger)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// entryDetails renders the detail blob stored next to the row. The
// columns stay authoritative; the blob exists for external tooling
// that reads the store directly.
func entryDetails(listingID, platform string, contactedAt time.Time) json.RawMessage {
	blob, err := jsonAPI.Marshal(schemas.LedgerEntry{
		ListingID:   listingID,
		Platform:    platform,
		ContactedAt: contactedAt.UTC(),
	})
	if err != nil {
		return json.RawMessage("{}")
	}
	return blob
}
