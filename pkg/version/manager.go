// ABOUTME: Version Manager orchestrating store, diff engine, and caches
// ABOUTME: Serializes writes per content and keeps caches coherent

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nainya/revstore/pkg/cache"
	"github.com/nainya/revstore/pkg/diff"
	"github.com/nainya/revstore/pkg/storage"
)

// Defaults for Config fields left at zero.
const (
	DefaultSnapshotInterval      = 10
	DefaultMaxVersionsPerContent = 50
	DefaultRetentionKeepFraction = 0.70
	DefaultVersionCacheSize      = 1024
	DefaultHistoryCacheSize      = 256
	DefaultDiffCacheSize         = 512
)

// Metrics receives engine events. Implementations must be safe for
// concurrent use; a nil Config.Metrics disables reporting.
type Metrics interface {
	// VersionCreated is called per committed version with kind
	// "snapshot" or "incremental".
	VersionCreated(kind string)

	// ReconstructionDone reports a finished reconstruction and the
	// number of diffs replayed.
	ReconstructionDone(depth int, failed bool)

	// DiffComputed reports the compression ratio of a stored diff.
	DiffComputed(ratio float64)

	// CacheRequest reports a lookup against one of the named caches.
	CacheRequest(name string, hit bool)

	// RetentionRun reports a finished cleanup pass.
	RetentionRun(deleted, promoted int)
}

type nopMetrics struct{}

func (nopMetrics) VersionCreated(string)        {}
func (nopMetrics) ReconstructionDone(int, bool) {}
func (nopMetrics) DiffComputed(float64)         {}
func (nopMetrics) CacheRequest(string, bool)    {}
func (nopMetrics) RetentionRun(int, int)        {}

// Config holds the tunables of a Manager. Start from DefaultConfig and
// override as needed; zero numeric fields fall back to defaults.
type Config struct {
	// SnapshotInterval forces every n-th version to be a snapshot.
	SnapshotInterval int

	// MaxVersionsPerContent triggers retention cleanup when exceeded.
	MaxVersionsPerContent int

	// RetentionKeepFraction is the share of non-snapshot versions,
	// most recent first, retained by cleanup. Must be in (0, 1].
	RetentionKeepFraction float64

	VersionCacheSize int
	HistoryCacheSize int
	DiffCacheSize    int

	Logger  zerolog.Logger
	Metrics Metrics
}

// DefaultConfig returns the standard tunables with a no-op logger.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval:      DefaultSnapshotInterval,
		MaxVersionsPerContent: DefaultMaxVersionsPerContent,
		RetentionKeepFraction: DefaultRetentionKeepFraction,
		VersionCacheSize:      DefaultVersionCacheSize,
		HistoryCacheSize:      DefaultHistoryCacheSize,
		DiffCacheSize:         DefaultDiffCacheSize,
		Logger:                zerolog.Nop(),
	}
}

func (c Config) withDefaults() Config {
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.MaxVersionsPerContent <= 0 {
		c.MaxVersionsPerContent = DefaultMaxVersionsPerContent
	}
	if c.RetentionKeepFraction <= 0 || c.RetentionKeepFraction > 1 {
		c.RetentionKeepFraction = DefaultRetentionKeepFraction
	}
	if c.VersionCacheSize <= 0 {
		c.VersionCacheSize = DefaultVersionCacheSize
	}
	if c.HistoryCacheSize <= 0 {
		c.HistoryCacheSize = DefaultHistoryCacheSize
	}
	if c.DiffCacheSize <= 0 {
		c.DiffCacheSize = DefaultDiffCacheSize
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	return c
}

// lockTable hands out one mutex per content key so writes to the same
// content serialize while unrelated contents proceed independently.
// Entries live for the process lifetime; the set of content keys
// bounds the table.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) acquire(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Manager is the public face of the versioning engine. All methods are
// safe for concurrent use. Returned records are shared with the cache
// and must be treated as read-only.
type Manager struct {
	store  *Store
	cfg    Config
	log    zerolog.Logger
	met    Metrics
	locks  *lockTable
	flight singleflight.Group

	versions  *cache.Cache[string, *ContentVersion]
	histories *cache.Cache[string, *VersionHistory]
	diffs     *cache.Cache[string, *diff.Diff]
}

// NewManager creates a Manager over the given adapter.
func NewManager(db storage.Adapter, cfg Config) (*Manager, error) {
	if db == nil {
		return nil, errors.New("version: nil storage adapter")
	}
	cfg = cfg.withDefaults()

	versions, err := cache.New[string, *ContentVersion](cfg.VersionCacheSize)
	if err != nil {
		return nil, err
	}
	histories, err := cache.New[string, *VersionHistory](cfg.HistoryCacheSize)
	if err != nil {
		return nil, err
	}
	diffs, err := cache.New[string, *diff.Diff](cfg.DiffCacheSize)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:     NewStore(db),
		cfg:       cfg,
		log:       cfg.Logger,
		met:       cfg.Metrics,
		locks:     newLockTable(),
		versions:  versions,
		histories: histories,
		diffs:     diffs,
	}, nil
}

// Close releases cached state. The underlying adapter is owned by the
// caller and stays open.
func (m *Manager) Close() {
	m.versions.Purge()
	m.histories.Purge()
	m.diffs.Purge()
}

// CacheStats reports hit and occupancy counters per cache.
func (m *Manager) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"version": m.versions.Stats(),
		"history": m.histories.Stats(),
		"diff":    m.diffs.Stats(),
	}
}

// CreateVersion appends one immutable version to the content's
// history. The first version of a content and every SnapshotInterval-th
// one store the full content; others store a structural diff against
// the previous version. The record and the index entry commit together
// or not at all; the history cache entry is dropped only after a
// successful commit. Exceeding MaxVersionsPerContent triggers a
// retention pass under the same lock.
func (m *Manager) CreateVersion(ctx context.Context, c VersionableContent, opts CreateOptions) (*ContentVersion, error) {
	if c.ID == "" || c.Type == "" {
		return nil, fmt.Errorf("%w: content id and type are required", ErrValidation)
	}
	content, err := canonicalize(c.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: content is not valid JSON: %v", ErrValidation, err)
	}

	key := contentKey(c.ID, c.Type)
	unlock := m.locks.acquire(key)
	defer unlock()

	idx, err := m.store.GetIndex(ctx, c.ID, c.Type)
	if err != nil {
		return nil, err
	}

	var latest *ContentVersion
	if n := len(idx.VersionIDs); n > 0 {
		latest, err = m.getVersion(ctx, idx.VersionIDs[n-1])
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, fmt.Errorf("%w: index for %s references missing version %s", ErrStorage, key, idx.VersionIDs[n-1])
		}
	}

	number := 1
	parentID := ""
	if latest != nil {
		number = latest.VersionNumber + 1
		parentID = latest.ID
	}
	isSnapshot := latest == nil || number%m.cfg.SnapshotInterval == 0

	v := &ContentVersion{
		ID:              uuid.NewString(),
		ContentID:       c.ID,
		ContentType:     c.Type,
		VersionNumber:   number,
		Title:           opts.Title,
		Description:     opts.Description,
		OwnerID:         c.OwnerID,
		CreatedAt:       time.Now().UTC(),
		IsSnapshot:      isSnapshot,
		ParentVersionID: parentID,
		Tags:            opts.Tags,
	}
	if v.Title == "" {
		v.Title = fmt.Sprintf("Version %d", number)
	}

	if isSnapshot {
		v.Content = content
		v.Size = int64(len(content))
	} else {
		base, err := m.reconstructLatest(ctx, latest)
		if err != nil {
			return nil, err
		}
		d, err := diff.Calculate(base, content)
		if err != nil {
			return nil, fmt.Errorf("%w: diff computation: %v", ErrValidation, err)
		}
		v.Diff = d
		v.Size = d.Size
		m.met.DiffComputed(d.CompressionRatio)
	}

	// A second writer on the same store may have advanced the index
	// while the diff was being computed.
	current, err := m.store.GetIndex(ctx, c.ID, c.Type)
	if err != nil {
		return nil, err
	}
	if !sameTail(idx, current) {
		return nil, fmt.Errorf("%w: version index for %s advanced during create", ErrConcurrency, key)
	}

	if err := m.store.PutVersion(ctx, v); err != nil {
		return nil, err
	}
	current.VersionIDs = append(current.VersionIDs, v.ID)
	if err := m.store.PutIndex(ctx, current); err != nil {
		// A record outside its index must not survive the failure.
		if derr := m.store.DeleteVersion(ctx, v.ID); derr != nil {
			m.log.Error().Err(derr).Str("version_id", v.ID).
				Msg("orphaned version record after failed index write")
		}
		return nil, err
	}

	m.histories.Remove(key)
	m.versions.Add(v.ID, v)

	kind := "incremental"
	if isSnapshot {
		kind = "snapshot"
	}
	m.met.VersionCreated(kind)
	m.log.Debug().
		Str("content", key).
		Int("version", number).
		Bool("snapshot", isSnapshot).
		Int64("size", v.Size).
		Msg("version created")

	if len(current.VersionIDs) > m.cfg.MaxVersionsPerContent {
		if _, err := m.cleanupLocked(ctx, c.ID, c.Type); err != nil {
			m.log.Error().Err(err).Str("content", key).Msg("retention cleanup failed")
		}
	}

	return v, nil
}

// GetVersion returns a single version record, or (nil, nil) when no
// such version exists.
func (m *Manager) GetVersion(ctx context.Context, versionID string) (*ContentVersion, error) {
	if versionID == "" {
		return nil, fmt.Errorf("%w: version id is required", ErrValidation)
	}
	return m.getVersion(ctx, versionID)
}

func (m *Manager) getVersion(ctx context.Context, versionID string) (*ContentVersion, error) {
	if v, ok := m.versions.Get(versionID); ok {
		m.met.CacheRequest("version", true)
		return v, nil
	}
	m.met.CacheRequest("version", false)

	v, err := m.store.GetVersion(ctx, versionID)
	if err != nil || v == nil {
		return v, err
	}
	m.versions.Add(versionID, v)
	return v, nil
}

// GetVersionHistory returns the ordered history of one content with
// aggregates. Concurrent misses for the same content share one load.
// An unknown content yields an empty history.
func (m *Manager) GetVersionHistory(ctx context.Context, contentID, contentType string) (*VersionHistory, error) {
	if contentID == "" || contentType == "" {
		return nil, fmt.Errorf("%w: content id and type are required", ErrValidation)
	}

	key := contentKey(contentID, contentType)
	if h, ok := m.histories.Get(key); ok {
		m.met.CacheRequest("history", true)
		return h, nil
	}
	m.met.CacheRequest("history", false)

	res, err, _ := m.flight.Do(key, func() (any, error) {
		// A queued duplicate may arrive after the winner already
		// cached the load; Peek avoids double-counting the lookup.
		if h, ok := m.histories.Peek(key); ok {
			return h, nil
		}
		h, err := m.loadHistory(ctx, contentID, contentType)
		if err != nil {
			return nil, err
		}
		m.histories.Add(key, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*VersionHistory), nil
}

func (m *Manager) loadHistory(ctx context.Context, contentID, contentType string) (*VersionHistory, error) {
	idx, err := m.store.GetIndex(ctx, contentID, contentType)
	if err != nil {
		return nil, err
	}

	h := &VersionHistory{
		ContentID:   contentID,
		ContentType: contentType,
		Versions:    make([]*ContentVersion, 0, len(idx.VersionIDs)),
	}
	for _, id := range idx.VersionIDs {
		v, err := m.getVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("%w: index for %s references missing version %s",
				ErrStorage, contentKey(contentID, contentType), id)
		}
		h.Versions = append(h.Versions, v)
	}
	sort.Slice(h.Versions, func(i, j int) bool {
		return h.Versions[i].VersionNumber < h.Versions[j].VersionNumber
	})

	h.TotalVersions = len(h.Versions)
	for _, v := range h.Versions {
		h.TotalSize += v.Size
	}
	if n := len(h.Versions); n > 0 {
		h.LatestVersion = h.Versions[n-1]
	}
	return h, nil
}

// ListVersionsByTag returns the content's versions carrying the given
// tag, ascending by version number.
func (m *Manager) ListVersionsByTag(ctx context.Context, contentID, contentType, tag string) ([]*ContentVersion, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is required", ErrValidation)
	}
	h, err := m.GetVersionHistory(ctx, contentID, contentType)
	if err != nil {
		return nil, err
	}

	var out []*ContentVersion
	for _, v := range h.Versions {
		if v.HasTag(tag) {
			out = append(out, v)
		}
	}
	return out, nil
}

// canonicalize re-encodes content compactly with sorted object keys so
// stored snapshots and replayed diff output stay byte-comparable.
func canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty content")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func sameTail(a, b *VersionIndex) bool {
	if len(a.VersionIDs) != len(b.VersionIDs) {
		return false
	}
	if len(a.VersionIDs) == 0 {
		return true
	}
	return a.VersionIDs[len(a.VersionIDs)-1] == b.VersionIDs[len(b.VersionIDs)-1]
}
