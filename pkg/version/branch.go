// ABOUTME: Branch bookkeeping as named pointers into version history
// ABOUTME: Metadata only; branches never fork the numbering sequence

package version

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBranch records a named pointer at a base version. The head
// starts at the base; nothing in the write path advances it, so a
// branch marks a divergence point rather than a parallel line of
// version numbers.
func (m *Manager) CreateBranch(ctx context.Context, contentID, contentType, baseVersionID, name string) (*Branch, error) {
	if contentID == "" || contentType == "" {
		return nil, fmt.Errorf("%w: content id and type are required", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrValidation)
	}
	if baseVersionID == "" {
		return nil, fmt.Errorf("%w: base version id is required", ErrValidation)
	}

	base, err := m.GetVersion(ctx, baseVersionID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%w: unknown base version %s", ErrValidation, baseVersionID)
	}
	if base.ContentID != contentID || base.ContentType != contentType {
		return nil, fmt.Errorf("%w: version %s does not belong to %s",
			ErrValidation, baseVersionID, contentKey(contentID, contentType))
	}

	unlock := m.locks.acquire(contentKey(contentID, contentType))
	defer unlock()

	branches, err := m.store.GetBranches(ctx, contentID, contentType)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		if b.Name == name && b.IsActive {
			return nil, fmt.Errorf("%w: branch %q already exists for %s",
				ErrValidation, name, contentKey(contentID, contentType))
		}
	}

	b := &Branch{
		ID:            uuid.NewString(),
		ContentID:     contentID,
		ContentType:   contentType,
		Name:          name,
		BaseVersionID: baseVersionID,
		HeadVersionID: baseVersionID,
		CreatedAt:     time.Now().UTC(),
		IsActive:      true,
	}
	branches = append(branches, b)
	if err := m.store.PutBranches(ctx, contentID, contentType, branches); err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("content", contentKey(contentID, contentType)).
		Str("branch", name).
		Str("base_version", baseVersionID).
		Msg("branch created")
	return b, nil
}

// ListBranches returns every branch recorded for a content.
func (m *Manager) ListBranches(ctx context.Context, contentID, contentType string) ([]*Branch, error) {
	if contentID == "" || contentType == "" {
		return nil, fmt.Errorf("%w: content id and type are required", ErrValidation)
	}
	return m.store.GetBranches(ctx, contentID, contentType)
}
