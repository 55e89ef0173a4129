package output

import (
	"context"

	"strom/internal/domain"
)

// IOutput mirrors a table mutation to its changelog topic so state can be
// rebuilt by replay after a crash or reassignment.
type IOutput interface {
	PushRecord(ctx context.Context, rec domain.Record) error
}
