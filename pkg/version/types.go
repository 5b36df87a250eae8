// ABOUTME: Content versioning data model
// ABOUTME: Immutable version records, histories, branches, and stats

package version

import (
	"encoding/json"
	"time"

	"github.com/nainya/revstore/pkg/diff"
)

// VersionableContent is a named, typed, user-owned value to be
// versioned. Identity is the (ID, Type) pair; the payload is opaque
// JSON to the engine.
type VersionableContent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	OwnerID   string          `json:"ownerId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ContentVersion is one immutable point in a content's history.
// Exactly one of Content (snapshots) or Diff (incremental versions) is
// populated. Records are never mutated after creation; retention may
// rewrite an incremental record into snapshot form, which changes the
// stored representation but never the logical content.
type ContentVersion struct {
	ID              string          `json:"id"`
	ContentID       string          `json:"contentId"`
	ContentType     string          `json:"contentType"`
	VersionNumber   int             `json:"versionNumber"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Content         json.RawMessage `json:"content,omitempty"`
	Diff            *diff.Diff      `json:"diff,omitempty"`
	OwnerID         string          `json:"ownerId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Size            int64           `json:"size"`
	IsSnapshot      bool            `json:"isSnapshot"`
	ParentVersionID string          `json:"parentVersionId,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
}

// HasTag reports whether the version carries the given tag.
func (v *ContentVersion) HasTag(tag string) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CreateOptions carries the optional descriptive fields of a new
// version.
type CreateOptions struct {
	Title       string
	Description string
	Tags        []string
}

// VersionHistory is the derived, cached view of one content's
// versions, ascending by version number.
type VersionHistory struct {
	ContentID     string            `json:"contentId"`
	ContentType   string            `json:"contentType"`
	Versions      []*ContentVersion `json:"versions"`
	TotalVersions int               `json:"totalVersions"`
	TotalSize     int64             `json:"totalSize"`
	LatestVersion *ContentVersion   `json:"latestVersion,omitempty"`
}

// Branch is a named pointer diverging from a base version. Branches
// are metadata only; they do not fork the version number sequence.
type Branch struct {
	ID            string    `json:"id"`
	ContentID     string    `json:"contentId"`
	ContentType   string    `json:"contentType"`
	Name          string    `json:"name"`
	BaseVersionID string    `json:"baseVersionId"`
	HeadVersionID string    `json:"headVersionId"`
	CreatedAt     time.Time `json:"createdAt"`
	IsActive      bool      `json:"isActive"`
}

// Stats aggregates version accounting, optionally filtered to one
// owner.
type Stats struct {
	OwnerID          string             `json:"ownerId,omitempty"`
	ContentCount     int                `json:"contentCount"`
	VersionCount     int                `json:"versionCount"`
	SnapshotCount    int                `json:"snapshotCount"`
	IncrementalCount int                `json:"incrementalCount"`
	BranchCount      int                `json:"branchCount"`
	TotalSize        int64              `json:"totalSize"`
	AverageVersions  float64            `json:"averageVersionsPerContent"`
	VersionsByType   map[string]int     `json:"versionsByType"`
	CacheHitRates    map[string]float64 `json:"cacheHitRates"`
}

// contentKey joins the identity pair into the composite key used by
// indexes and locks.
func contentKey(contentID, contentType string) string {
	return contentID + ":" + contentType
}
