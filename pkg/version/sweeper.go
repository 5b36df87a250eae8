// ABOUTME: Periodic retention sweeper across all contents
// ABOUTME: Background Start/Stop loop; Sweep is callable directly in tests

package version

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultSweepInterval is how often retention runs over all contents.
	DefaultSweepInterval = 24 * time.Hour
)

// Sweeper periodically applies the retention policy to every content
// in the store. Each content is cleaned under its own write lock, so
// sweeps never race in-flight writes for the same content.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration
	log      zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper over the manager's contents. A
// non-positive interval falls back to DefaultSweepInterval.
func NewSweeper(mgr *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		mgr:      mgr,
		interval: interval,
		log:      mgr.log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("retention sweep failed")
			}

		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs retention over every content once and returns the total
// number of versions deleted. Per-content failures are logged and do
// not stop the pass; the first one is returned after the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	indexes, err := s.mgr.store.ListIndexes(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var firstErr error
	for _, idx := range indexes {
		n, err := s.mgr.CleanupOldVersions(ctx, idx.ContentID, idx.ContentType)
		if err != nil {
			s.log.Error().Err(err).
				Str("content", contentKey(idx.ContentID, idx.ContentType)).
				Msg("content sweep failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}

	if total > 0 {
		s.log.Info().
			Int("deleted", total).
			Int("contents", len(indexes)).
			Msg("retention sweep finished")
	}
	return total, firstErr
}
