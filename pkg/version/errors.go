// ABOUTME: Sentinel errors for the versioning engine
// ABOUTME: Matched with errors.Is across all manager operations

package version

import "errors"

var (
	// ErrReconstruction indicates a broken diff chain: no reachable
	// base snapshot or an unapplicable stored diff. It must never
	// occur for a retained version; an occurrence is a data-integrity
	// bug and is logged at error level.
	ErrReconstruction = errors.New("version: broken reconstruction chain")

	// ErrValidation indicates bad input: unknown ids, malformed
	// content, or an invalid request. Not retryable.
	ErrValidation = errors.New("version: validation failed")

	// ErrStorage indicates a persistence adapter failure. The failed
	// operation left no partial state; transient cases are retryable.
	ErrStorage = errors.New("version: storage failure")

	// ErrConcurrency indicates the write-serialization invariant was
	// violated, usually by a second writer on the same store. The
	// caller should retry.
	ErrConcurrency = errors.New("version: concurrent modification")
)
