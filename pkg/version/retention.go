// ABOUTME: Retention policy pruning old incremental versions
// ABOUTME: Promotes chain-bearing versions to snapshots before deleting

package version

import (
	"context"
	"fmt"
	"math"
)

// CleanupOldVersions applies the retention policy to one content and
// returns how many versions were deleted. Snapshots are never deleted;
// among non-snapshot versions the most recent RetentionKeepFraction
// stay. Every retained version still reconstructs afterwards: when a
// deletion would orphan a retained version's diff chain, the first
// retained version of that stretch is promoted to a snapshot before
// anything is removed.
func (m *Manager) CleanupOldVersions(ctx context.Context, contentID, contentType string) (int, error) {
	if contentID == "" || contentType == "" {
		return 0, fmt.Errorf("%w: content id and type are required", ErrValidation)
	}

	unlock := m.locks.acquire(contentKey(contentID, contentType))
	defer unlock()

	return m.cleanupLocked(ctx, contentID, contentType)
}

// cleanupLocked runs the policy under an already-held content lock.
func (m *Manager) cleanupLocked(ctx context.Context, contentID, contentType string) (int, error) {
	key := contentKey(contentID, contentType)

	h, err := m.loadHistory(ctx, contentID, contentType)
	if err != nil {
		return 0, err
	}
	if h.TotalVersions <= m.cfg.MaxVersionsPerContent {
		return 0, nil
	}

	var nonSnapshots []*ContentVersion
	for _, v := range h.Versions {
		if !v.IsSnapshot {
			nonSnapshots = append(nonSnapshots, v)
		}
	}
	keep := int(math.Ceil(m.cfg.RetentionKeepFraction * float64(len(nonSnapshots))))
	if keep >= len(nonSnapshots) {
		return 0, nil
	}
	deletable := nonSnapshots[:len(nonSnapshots)-keep]

	doomed := make(map[string]bool, len(deletable))
	for _, v := range deletable {
		doomed[v.ID] = true
	}

	// The first retained non-snapshot after a doomed stretch of its
	// snapshot segment would lose its base; it must become a snapshot
	// itself. Later retained versions of the segment then chain to it.
	var promotions []*ContentVersion
	gap := false
	for _, v := range h.Versions {
		switch {
		case v.IsSnapshot:
			gap = false
		case doomed[v.ID]:
			gap = true
		case gap:
			promotions = append(promotions, v)
			gap = false
		}
	}

	// Promote while the full chain is still intact, before any delete.
	for _, v := range promotions {
		content, err := m.replay(h.Versions, v)
		if err != nil {
			return 0, err
		}
		promoted := *v
		promoted.Content = content
		promoted.Diff = nil
		promoted.IsSnapshot = true
		promoted.Size = int64(len(content))
		if err := m.store.PutVersion(ctx, &promoted); err != nil {
			return 0, err
		}
		m.versions.Add(promoted.ID, &promoted)
	}

	// Rewrite the index before deleting records: a failed delete then
	// leaves an orphaned record, never a dangling index entry.
	retained := make([]string, 0, h.TotalVersions-len(deletable))
	for _, v := range h.Versions {
		if !doomed[v.ID] {
			retained = append(retained, v.ID)
		}
	}
	idx := &VersionIndex{ContentID: contentID, ContentType: contentType, VersionIDs: retained}
	if err := m.store.PutIndex(ctx, idx); err != nil {
		return 0, err
	}

	deleted := 0
	for _, v := range deletable {
		if err := m.store.DeleteVersion(ctx, v.ID); err != nil {
			m.log.Error().Err(err).Str("version_id", v.ID).
				Msg("orphaned version record after retention delete")
			continue
		}
		m.versions.Remove(v.ID)
		deleted++
	}

	m.histories.Remove(key)
	// Cached pairwise diffs may reference deleted versions.
	m.diffs.Purge()

	m.met.RetentionRun(deleted, len(promotions))
	m.log.Info().
		Str("content", key).
		Int("deleted", deleted).
		Int("promoted", len(promotions)).
		Int("retained", len(retained)).
		Msg("retention cleanup finished")

	return deleted, nil
}
