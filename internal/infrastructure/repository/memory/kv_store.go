package memory

import (
	"context"
	"slices"
	"sync"
)

// KVStore is a process-local store used for previews and tests.
type KVStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewKVStore() *KVStore {
	return &KVStore{buckets: make(map[string]map[string][]byte)}
}

func (s *KVStore) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.buckets[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (s *KVStore) Put(_ context.Context, bucket, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	if _, exists := b[key]; exists {
		return false, nil
	}
	b[key] = slices.Clone(value)
	return true, nil
}

func (s *KVStore) Flush(context.Context) error { return nil }

func (s *KVStore) Scan(_ context.Context, bucket string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = slices.Clone(s.buckets[bucket][k])
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	for _, k := range keys {
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) Delete(_ context.Context, bucket string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.buckets[bucket], k)
	}
	return nil
}
