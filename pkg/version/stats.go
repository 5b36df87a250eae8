// ABOUTME: Aggregated version statistics across contents
// ABOUTME: Optional per-owner filtering; includes cache hit rates

package version

import (
	"context"
)

// GetVersionStats walks every version index and aggregates counts,
// sizes, and per-type breakdowns. An empty ownerID covers all owners;
// otherwise only versions recorded for that owner are counted, and a
// content (with its branches) counts when it has at least one such
// version.
func (m *Manager) GetVersionStats(ctx context.Context, ownerID string) (*Stats, error) {
	indexes, err := m.store.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		OwnerID:        ownerID,
		VersionsByType: make(map[string]int),
		CacheHitRates:  make(map[string]float64),
	}

	for _, idx := range indexes {
		h, err := m.GetVersionHistory(ctx, idx.ContentID, idx.ContentType)
		if err != nil {
			return nil, err
		}

		counted := false
		for _, v := range h.Versions {
			if ownerID != "" && v.OwnerID != ownerID {
				continue
			}
			counted = true
			stats.VersionCount++
			stats.TotalSize += v.Size
			stats.VersionsByType[v.ContentType]++
			if v.IsSnapshot {
				stats.SnapshotCount++
			} else {
				stats.IncrementalCount++
			}
		}
		if !counted {
			continue
		}

		stats.ContentCount++
		branches, err := m.store.GetBranches(ctx, idx.ContentID, idx.ContentType)
		if err != nil {
			return nil, err
		}
		stats.BranchCount += len(branches)
	}

	if stats.ContentCount > 0 {
		stats.AverageVersions = float64(stats.VersionCount) / float64(stats.ContentCount)
	}
	for name, cs := range m.CacheStats() {
		stats.CacheHitRates[name] = cs.HitRate()
	}
	return stats, nil
}
