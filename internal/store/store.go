package store

import (
	"context"

	"strom/internal/domain"
)

// ITableStorage backs one table with partitioned key-value state plus the
// replay progress of its changelog partitions. Implementations must survive
// ResetPartition during a rebalance: revoked local state is dropped and
// rebuilt from the changelog when the partition comes back.
type ITableStorage interface {
	IKeyValueStorage
	IOffsetStorage
	Close() error
}

type IKeyValueStorage interface {
	Get(ctx context.Context, partition int32, key []byte) ([]byte, error)
	Set(ctx context.Context, partition int32, key, value []byte) error
	Del(ctx context.Context, partition int32, key []byte) error
	ResetPartition(ctx context.Context, partition int32) error
}

type IOffsetStorage interface {
	// Offset returns the last applied changelog offset for tp, or -1 when
	// nothing has been applied yet.
	Offset(ctx context.Context, tp domain.TP) (int64, error)
	SetOffset(ctx context.Context, tp domain.TP, offset int64) error
}

// Apply replays one changelog record against s: a tombstone deletes the
// key, anything else upserts it, and the replay offset advances either way.
func Apply(ctx context.Context, s ITableStorage, rec domain.Record) error {
	if rec.Tombstone() {
		if err := s.Del(ctx, rec.TP.Partition, rec.Key); err != nil {
			return err
		}
	} else {
		if err := s.Set(ctx, rec.TP.Partition, rec.Key, rec.Value); err != nil {
			return err
		}
	}
	return s.SetOffset(ctx, rec.TP, rec.Offset)
}
