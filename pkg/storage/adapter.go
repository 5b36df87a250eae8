// ABOUTME: Persistence adapter contract for version records
// ABOUTME: Defines the key-value interface every backend must satisfy

package storage

import (
	"context"
	"errors"
)

// Key prefixes shared by all adapters. Version records are keyed
// individually; per-content index lists hold the ordered version ids
// and the branch set for one content key.
const (
	PrefixVersion         = "version:"
	PrefixContentVersions = "content-versions:"
	PrefixContentBranches = "content-branches:"
)

// ErrKeyNotFound indicates the key is absent from the backend.
var ErrKeyNotFound = errors.New("storage: key not found")

// Adapter is the persistence contract consumed by the version engine.
// Implementations must be safe for concurrent use. I/O deadlines are the
// adapter's responsibility; failures surface as plain errors and are
// wrapped by the caller.
type Adapter interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeysWithPrefix returns all keys starting with prefix, in
	// lexicographic order.
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// VersionKey returns the record key for a version id.
func VersionKey(versionID string) string {
	return PrefixVersion + versionID
}

// ContentVersionsKey returns the index key holding the ordered version
// id list for a content key.
func ContentVersionsKey(contentKey string) string {
	return PrefixContentVersions + contentKey
}

// ContentBranchesKey returns the key holding the branch set for a
// content key.
func ContentBranchesKey(contentKey string) string {
	return PrefixContentBranches + contentKey
}
