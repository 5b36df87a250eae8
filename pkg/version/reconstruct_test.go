// ABOUTME: Tests for reconstruction, comparison, and restore
// ABOUTME: Verifies replay correctness and broken-chain detection

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nainya/revstore/pkg/diff"
	"github.com/nainya/revstore/pkg/storage"
)

func TestReconstructSnapshotDirectly(t *testing.T) {
	m := newTestManager(t)

	v1 := mustCreate(t, m, "c1", "doc", `{"a":1}`)

	got, err := m.Reconstruct(context.Background(), v1.ID)
	if err != nil {
		t.Fatalf("Failed to reconstruct snapshot: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Expected {\"a\":1}, got %s", got)
	}

	// The returned bytes are the caller's to mutate.
	got[1] = 'x'
	again, err := m.Reconstruct(context.Background(), v1.ID)
	if err != nil {
		t.Fatalf("Failed to reconstruct again: %v", err)
	}
	if string(again) != `{"a":1}` {
		t.Errorf("Stored snapshot was mutated: %s", again)
	}
}

func TestReconstructUnknownVersion(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Reconstruct(context.Background(), "ghost")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestReconstructAcrossSnapshotBoundary(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Versions 1 and 10 are snapshots; 11 and 12 chain to version 10,
	// not all the way back to 1.
	var ids []string
	for i := 1; i <= 12; i++ {
		v := mustCreate(t, m, "c1", "doc", fmt.Sprintf(`{"n":%d}`, i))
		ids = append(ids, v.ID)
	}

	for _, k := range []int{9, 10, 11, 12} {
		got, err := m.Reconstruct(ctx, ids[k-1])
		if err != nil {
			t.Fatalf("Failed to reconstruct version %d: %v", k, err)
		}
		want := fmt.Sprintf(`{"n":%d}`, k)
		if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, json.RawMessage(want))) {
			t.Errorf("Version %d: got %s, want %s", k, got, want)
		}
	}
}

func TestBrokenChainGapDetected(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		ids = append(ids, mustCreate(t, m, "c1", "doc", fmt.Sprintf(`{"n":%d}`, i)).ID)
	}

	// Remove the middle link behind the manager's back.
	if err := m.store.DeleteVersion(ctx, ids[1]); err != nil {
		t.Fatalf("Failed to delete version: %v", err)
	}
	idx := &VersionIndex{ContentID: "c1", ContentType: "doc", VersionIDs: []string{ids[0], ids[2]}}
	if err := m.store.PutIndex(ctx, idx); err != nil {
		t.Fatalf("Failed to rewrite index: %v", err)
	}
	m.histories.Purge()
	m.versions.Purge()

	_, err := m.Reconstruct(ctx, ids[2])
	if !errors.Is(err, ErrReconstruction) {
		t.Errorf("Expected ErrReconstruction for gapped chain, got %v", err)
	}
}

func TestBrokenChainNoSnapshotDetected(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		ids = append(ids, mustCreate(t, m, "c1", "doc", fmt.Sprintf(`{"n":%d}`, i)).ID)
	}

	// Drop the base snapshot from the index entirely.
	idx := &VersionIndex{ContentID: "c1", ContentType: "doc", VersionIDs: []string{ids[1], ids[2]}}
	if err := m.store.PutIndex(ctx, idx); err != nil {
		t.Fatalf("Failed to rewrite index: %v", err)
	}
	m.histories.Purge()
	m.versions.Purge()

	_, err := m.Reconstruct(ctx, ids[2])
	if !errors.Is(err, ErrReconstruction) {
		t.Errorf("Expected ErrReconstruction without base snapshot, got %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v1 := mustCreate(t, m, "c1", "doc", `{"a":1}`)
	v2 := mustCreate(t, m, "c1", "doc", `{"a":2}`)

	d, err := m.CompareVersions(ctx, v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("Failed to compare versions: %v", err)
	}
	if len(d.Changes) != 1 {
		t.Fatalf("Expected 1 change, got %+v", d.Changes)
	}
	c := d.Changes[0]
	if c.Path != "a" || c.OldValue != float64(1) || c.NewValue != float64(2) {
		t.Errorf("Expected a: 1 -> 2, got %q: %v -> %v", c.Path, c.OldValue, c.NewValue)
	}

	// Repeated comparison is pure and served from cache.
	again, err := m.CompareVersions(ctx, v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("Failed to compare again: %v", err)
	}
	if !reflect.DeepEqual(d, again) {
		t.Errorf("Comparison not pure: %+v vs %+v", d, again)
	}
	if s := m.CacheStats()["diff"]; s.Hits != 1 {
		t.Errorf("Expected 1 diff cache hit, got %d", s.Hits)
	}
}

func TestCompareVersionsDirectionMatters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v1 := mustCreate(t, m, "c1", "doc", `{"a":1}`)
	v2 := mustCreate(t, m, "c1", "doc", `{"a":2}`)

	forward, err := m.CompareVersions(ctx, v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("Failed to compare forward: %v", err)
	}
	backward, err := m.CompareVersions(ctx, v2.ID, v1.ID)
	if err != nil {
		t.Fatalf("Failed to compare backward: %v", err)
	}

	if forward.Changes[0].NewValue != float64(2) || backward.Changes[0].NewValue != float64(1) {
		t.Errorf("Expected direction-dependent diffs, got %+v / %+v", forward.Changes, backward.Changes)
	}
}

func TestCompareVersionsUnknownID(t *testing.T) {
	m := newTestManager(t)

	v1 := mustCreate(t, m, "c1", "doc", `{"a":1}`)

	if _, err := m.CompareVersions(context.Background(), v1.ID, "ghost"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if _, err := m.CompareVersions(context.Background(), "", v1.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for empty id, got %v", err)
	}
}

func TestRestoreVersion(t *testing.T) {
	inner := storage.NewMemoryStore()
	m, err := NewManager(inner, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		ids = append(ids, mustCreate(t, m, "c1", "doc", fmt.Sprintf(`{"a":%d}`, i)).ID)
	}

	// Raw records before the restore, for byte-identity checks.
	before := make(map[string][]byte)
	for _, id := range ids {
		data, err := inner.Get(ctx, storage.VersionKey(id))
		if err != nil {
			t.Fatalf("Failed to read raw record: %v", err)
		}
		before[id] = data
	}

	content, restored, err := m.RestoreVersion(ctx, ids[0])
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	if string(content) != `{"a":1}` {
		t.Errorf("Expected restored content {\"a\":1}, got %s", content)
	}
	if restored.VersionNumber != 6 {
		t.Errorf("Expected restore to become version 6, got %d", restored.VersionNumber)
	}
	if !restored.HasTag("restore") {
		t.Errorf("Expected restore tag, got %v", restored.Tags)
	}

	h, err := m.GetVersionHistory(ctx, "c1", "doc")
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if h.TotalVersions != 6 {
		t.Errorf("Expected history length 6, got %d", h.TotalVersions)
	}

	// Restore is append-only: prior records are byte-identical.
	for _, id := range ids {
		data, err := inner.Get(ctx, storage.VersionKey(id))
		if err != nil {
			t.Fatalf("Failed to re-read raw record: %v", err)
		}
		if string(data) != string(before[id]) {
			t.Errorf("Version record %s changed during restore", id)
		}
	}

	// The restored version reconstructs to the restored content.
	got, err := m.Reconstruct(ctx, restored.ID)
	if err != nil {
		t.Fatalf("Failed to reconstruct restored version: %v", err)
	}
	if !reflect.DeepEqual(decodeJSON(t, got), decodeJSON(t, content)) {
		t.Errorf("Expected %s, got %s", content, got)
	}
}

func TestRestoreUnknownVersion(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.RestoreVersion(context.Background(), "ghost")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestRestoredContentMatchesDiffChain(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v1 := mustCreate(t, m, "c1", "doc", `{"title":"one","tags":["a","b"]}`)
	mustCreate(t, m, "c1", "doc", `{"title":"two","tags":["a"]}`)

	_, restored, err := m.RestoreVersion(ctx, v1.ID)
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	// The restore itself is stored as a diff against version 2.
	if restored.IsSnapshot {
		t.Error("Expected restored version to be incremental")
	}
	d, err := m.CompareVersions(ctx, v1.ID, restored.ID)
	if err != nil {
		t.Fatalf("Failed to compare original and restore: %v", err)
	}
	if len(d.Changes) != 0 {
		t.Errorf("Expected no difference between original and restore, got %+v", d.Changes)
	}
	if d.Type != diff.TypeIncremental {
		t.Errorf("Expected empty incremental diff, got %q", d.Type)
	}
}
