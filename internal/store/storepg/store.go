package storepg

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Storage is a durable ITableStorage over Postgres, one instance per table.
// State survives restarts, so recovery only replays the changelog suffix
// past the persisted offsets.
type Storage struct {
	db        *sqlx.DB
	tableName string
}

func NewStorage(db *sqlx.DB, tableName string) *Storage {
	return &Storage{
		db:        db,
		tableName: tableName,
	}
}

// Bootstrap creates the backing relations when they do not exist yet.
func Bootstrap(ctx context.Context, db *sqlx.DB) error {
	for _, query := range []string{CreateStateTableQuery, CreateOffsetsTableQuery} {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("bootstrap storage schema: %w", err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	return nil
}
