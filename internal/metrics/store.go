// Instrumented storage adapter recording per-operation metrics
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/nainya/revstore/pkg/storage"
)

// MeasuredStore wraps a storage adapter and records operation counts
// and durations for every call.
type MeasuredStore struct {
	inner storage.Adapter
	m     *Metrics
}

// NewMeasuredStore wraps inner with metrics recording.
func NewMeasuredStore(inner storage.Adapter, m *Metrics) *MeasuredStore {
	return &MeasuredStore{inner: inner, m: m}
}

// Get returns the value stored under key.
func (s *MeasuredStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	val, err := s.inner.Get(ctx, key)
	s.m.RecordStoreOperation("get", opStatus(err), time.Since(start))
	return val, err
}

// Set stores value under key.
func (s *MeasuredStore) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	s.m.RecordStoreOperation("set", opStatus(err), time.Since(start))
	return err
}

// Delete removes key.
func (s *MeasuredStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.m.RecordStoreOperation("delete", opStatus(err), time.Since(start))
	return err
}

// ListKeysWithPrefix returns all keys starting with prefix.
func (s *MeasuredStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.inner.ListKeysWithPrefix(ctx, prefix)
	s.m.RecordStoreOperation("scan", opStatus(err), time.Since(start))
	return keys, err
}

// opStatus maps an adapter error to a metric label. Absent keys are a
// routine outcome, not a failure.
func opStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, storage.ErrKeyNotFound):
		return "not_found"
	default:
		return "error"
	}
}
