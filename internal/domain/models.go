package domain

import "time"

// Record is a single message read from, or mirrored to, a partitioned log.
type Record struct {
	TP        TP
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Tombstone reports whether the record deletes its key on replay.
func (r Record) Tombstone() bool {
	return r.Value == nil
}
