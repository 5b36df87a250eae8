// ABOUTME: Version record persistence over the storage adapter
// ABOUTME: JSON-encoded records, per-content version indexes, branch lists

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nainya/revstore/pkg/storage"
)

// VersionIndex is the persisted, append-ordered list of version ids
// for one content key. It carries the identity pair so scans over the
// index prefix never need to parse keys.
type VersionIndex struct {
	ContentID   string   `json:"contentId"`
	ContentType string   `json:"contentType"`
	VersionIDs  []string `json:"versionIds"`
}

// Store persists version records, version indexes, and branch lists
// through a storage adapter. It performs no locking or cache
// maintenance; the Manager owns both.
type Store struct {
	db storage.Adapter
}

// NewStore creates a store over the given adapter.
func NewStore(db storage.Adapter) *Store {
	return &Store{db: db}
}

// PutVersion writes a version record under version:{id}.
func (s *Store) PutVersion(ctx context.Context, v *ContentVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode version %s: %w", ErrStorage, v.ID, err)
	}
	if err := s.db.Set(ctx, storage.VersionKey(v.ID), data); err != nil {
		return fmt.Errorf("%w: put version %s: %w", ErrStorage, v.ID, err)
	}
	return nil
}

// GetVersion reads a version record, returning (nil, nil) when absent.
func (s *Store) GetVersion(ctx context.Context, versionID string) (*ContentVersion, error) {
	data, err := s.db.Get(ctx, storage.VersionKey(versionID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get version %s: %w", ErrStorage, versionID, err)
	}

	var v ContentVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: decode version %s: %w", ErrStorage, versionID, err)
	}
	return &v, nil
}

// DeleteVersion removes a version record. Deleting an absent record is
// not an error.
func (s *Store) DeleteVersion(ctx context.Context, versionID string) error {
	if err := s.db.Delete(ctx, storage.VersionKey(versionID)); err != nil {
		return fmt.Errorf("%w: delete version %s: %w", ErrStorage, versionID, err)
	}
	return nil
}

// GetIndex reads the version index for a content key. An absent index
// is returned as an empty one.
func (s *Store) GetIndex(ctx context.Context, contentID, contentType string) (*VersionIndex, error) {
	key := storage.ContentVersionsKey(contentKey(contentID, contentType))
	data, err := s.db.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &VersionIndex{ContentID: contentID, ContentType: contentType, VersionIDs: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get index %s: %w", ErrStorage, key, err)
	}

	var idx VersionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: decode index %s: %w", ErrStorage, key, err)
	}
	return &idx, nil
}

// PutIndex writes the version index for a content key.
func (s *Store) PutIndex(ctx context.Context, idx *VersionIndex) error {
	key := storage.ContentVersionsKey(contentKey(idx.ContentID, idx.ContentType))
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("%w: encode index %s: %w", ErrStorage, key, err)
	}
	if err := s.db.Set(ctx, key, data); err != nil {
		return fmt.Errorf("%w: put index %s: %w", ErrStorage, key, err)
	}
	return nil
}

// ListIndexes returns every version index in the store, used by stats
// and the retention sweeper.
func (s *Store) ListIndexes(ctx context.Context) ([]*VersionIndex, error) {
	keys, err := s.db.ListKeysWithPrefix(ctx, storage.PrefixContentVersions)
	if err != nil {
		return nil, fmt.Errorf("%w: list indexes: %w", ErrStorage, err)
	}

	indexes := make([]*VersionIndex, 0, len(keys))
	for _, key := range keys {
		data, err := s.db.Get(ctx, key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			continue // deleted between list and get
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get index %s: %w", ErrStorage, key, err)
		}
		var idx VersionIndex
		if err := json.Unmarshal(data, &idx); err != nil {
			return nil, fmt.Errorf("%w: decode index %s: %w", ErrStorage, key, err)
		}
		indexes = append(indexes, &idx)
	}
	return indexes, nil
}

// GetBranches reads the branch list for a content key. An absent list
// is returned empty.
func (s *Store) GetBranches(ctx context.Context, contentID, contentType string) ([]*Branch, error) {
	key := storage.ContentBranchesKey(contentKey(contentID, contentType))
	data, err := s.db.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []*Branch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get branches %s: %w", ErrStorage, key, err)
	}

	var branches []*Branch
	if err := json.Unmarshal(data, &branches); err != nil {
		return nil, fmt.Errorf("%w: decode branches %s: %w", ErrStorage, key, err)
	}
	return branches, nil
}

// PutBranches writes the branch list for a content key.
func (s *Store) PutBranches(ctx context.Context, contentID, contentType string, branches []*Branch) error {
	key := storage.ContentBranchesKey(contentKey(contentID, contentType))
	data, err := json.Marshal(branches)
	if err != nil {
		return fmt.Errorf("%w: encode branches %s: %w", ErrStorage, key, err)
	}
	if err := s.db.Set(ctx, key, data); err != nil {
		return fmt.Errorf("%w: put branches %s: %w", ErrStorage, key, err)
	}
	return nil
}
