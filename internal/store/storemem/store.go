package storemem

import (
	"context"
	"sync"

	"strom/internal/domain"
)

// Storage keeps table state in process memory. State is lost on restart
// and rebuilt from the changelog, which is the default mode for a worker
// without a durable store configured.
type Storage struct {
	mu         sync.RWMutex
	partitions map[int32]map[string][]byte
	offsets    map[domain.TP]int64
}

func NewStorage() *Storage {
	return &Storage{
		partitions: make(map[int32]map[string][]byte),
		offsets:    make(map[domain.TP]int64),
	}
}

func (s *Storage) Get(_ context.Context, partition int32, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.partitions[partition][string(key)]
	if !ok {
		return nil, nil
	}
	res := make([]byte, len(value))
	copy(res, value)
	return res, nil
}

func (s *Storage) Set(_ context.Context, partition int32, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[partition]
	if !ok {
		p = make(map[string][]byte)
		s.partitions[partition] = p
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	p[string(key)] = stored
	return nil
}

func (s *Storage) Del(_ context.Context, partition int32, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions[partition], string(key))
	return nil
}

func (s *Storage) ResetPartition(_ context.Context, partition int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions, partition)
	for tp := range s.offsets {
		if tp.Partition == partition {
			delete(s.offsets, tp)
		}
	}
	return nil
}

func (s *Storage) Offset(_ context.Context, tp domain.TP) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	off, ok := s.offsets[tp]
	if !ok {
		return -1, nil
	}
	return off, nil
}

func (s *Storage) SetOffset(_ context.Context, tp domain.TP, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[tp] = offset
	return nil
}

func (s *Storage) Close() error {
	return nil
}
