package storepg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"strom/internal/db/pg"
)

func (s *Storage) Get(ctx context.Context, partition int32, key []byte) ([]byte, error) {
	query, args, err := squirrel.
		Select("value").
		From(StateTableName).
		Where(squirrel.Eq{
			"table_name": s.tableName,
			"partition":  partition,
			"key":        key,
		}).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("squirrel.Select: %w", err)
	}
	var value []byte
	err = s.db.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select state error: %w", err)
	}
	return value, nil
}

func (s *Storage) Set(ctx context.Context, partition int32, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, UpsertStateQuery, s.tableName, partition, key, value)
	if err != nil {
		return fmt.Errorf("upsert state error: %w", err)
	}
	return nil
}

func (s *Storage) Del(ctx context.Context, partition int32, key []byte) error {
	query, args, err := squirrel.
		Delete(StateTableName).
		Where(squirrel.Eq{
			"table_name": s.tableName,
			"partition":  partition,
			"key":        key,
		}).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("squirrel.Delete: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete state error: %w", err)
	}
	return nil
}

// ResetPartition drops local state and replay progress for a revoked
// partition in one transaction, so a half-dropped partition is never
// observed by a later recovery.
func (s *Storage) ResetPartition(ctx context.Context, partition int32) error {
	return pg.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, table := range []string{StateTableName, OffsetsTableName} {
			query, args, err := squirrel.
				Delete(table).
				Where(squirrel.Eq{
					"table_name": s.tableName,
					"partition":  partition,
				}).PlaceholderFormat(squirrel.Dollar).ToSql()
			if err != nil {
				return fmt.Errorf("squirrel.Delete: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("reset partition error: %w", err)
			}
		}
		return nil
	}, nil)
}
