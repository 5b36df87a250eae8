// ABOUTME: Tests for the periodic retention sweeper
// ABOUTME: Sweep is driven directly; the loop only needs Start/Stop

package version

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nainya/revstore/pkg/storage"
)

func TestSweepPrunesEveryContent(t *testing.T) {
	db := storage.NewMemoryStore()
	ctx := context.Background()

	seed := DefaultConfig()
	seed.MaxVersionsPerContent = 100
	seeder, err := NewManager(db, seed)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	for _, content := range []string{"c1", "c2"} {
		for i := 1; i <= 30; i++ {
			if _, err := seeder.CreateVersion(ctx, VersionableContent{
				ID:      content,
				Type:    "doc",
				Content: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			}, CreateOptions{}); err != nil {
				t.Fatalf("Failed to seed %s version %d: %v", content, i, err)
			}
		}
	}

	cfg := DefaultConfig()
	cfg.MaxVersionsPerContent = 20
	m, err := NewManager(db, cfg)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	s := NewSweeper(m, time.Hour)

	deleted, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted <= 0 {
		t.Fatalf("Expected deletions across contents, got %d", deleted)
	}

	for _, content := range []string{"c1", "c2"} {
		h, err := m.GetVersionHistory(ctx, content, "doc")
		if err != nil {
			t.Fatalf("Failed to get %s history: %v", content, err)
		}
		if h.TotalVersions >= 30 {
			t.Errorf("Expected %s pruned, still %d versions", content, h.TotalVersions)
		}
		for _, v := range h.Versions {
			if _, err := m.Reconstruct(ctx, v.ID); err != nil {
				t.Errorf("%s version %d no longer reconstructs: %v", content, v.VersionNumber, err)
			}
		}
	}
}

func TestSweepEmptyStore(t *testing.T) {
	m := newTestManager(t)
	s := NewSweeper(m, time.Hour)

	deleted, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected nothing to delete, got %d", deleted)
	}
}

func TestSweeperStartStop(t *testing.T) {
	m := newTestManager(t)
	s := NewSweeper(m, time.Hour)

	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSweeperDefaultInterval(t *testing.T) {
	m := newTestManager(t)

	s := NewSweeper(m, 0)
	if s.interval != DefaultSweepInterval {
		t.Errorf("Expected default interval %v, got %v", DefaultSweepInterval, s.interval)
	}
}
