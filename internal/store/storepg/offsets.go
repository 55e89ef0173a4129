package storepg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"strom/internal/domain"
)

func (s *Storage) Offset(ctx context.Context, tp domain.TP) (int64, error) {
	query, args, err := squirrel.
		Select("last_offset").
		From(OffsetsTableName).
		Where(squirrel.Eq{
			"table_name": s.tableName,
			"topic":      tp.Topic,
			"partition":  tp.Partition,
		}).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return 0, fmt.Errorf("squirrel.Select: %w", err)
	}
	var offset int64
	err = s.db.GetContext(ctx, &offset, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select offset error: %w", err)
	}
	return offset, nil
}

func (s *Storage) SetOffset(ctx context.Context, tp domain.TP, offset int64) error {
	_, err := s.db.ExecContext(ctx, UpsertOffsetQuery, s.tableName, tp.Topic, tp.Partition, offset)
	if err != nil {
		return fmt.Errorf("upsert offset error: %w", err)
	}
	return nil
}
