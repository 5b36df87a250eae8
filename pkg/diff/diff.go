// ABOUTME: Structural diff engine for versioned JSON content
// ABOUTME: Computes and applies path-addressed change sets

package diff

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type distinguishes a whole-value replacement from a structural diff.
type Type string

const (
	// TypeFull marks a whole-value replacement, used when the two
	// contents cannot be structurally compared.
	TypeFull Type = "full"

	// TypeIncremental marks a path-addressed structural diff.
	TypeIncremental Type = "incremental"
)

// Op is the kind of a single change.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpModify Op = "modify"
)

// ErrMalformed indicates a diff that cannot be applied to the given
// content: unknown path, shape mismatch, or stale old value.
var ErrMalformed = errors.New("diff: malformed diff")

// Change is one path-addressed edit. Paths are dot-joined segments
// ("meta.tags.2"); the empty path addresses the root value. Dots and
// tildes inside object keys are escaped as ~1 and ~0.
type Change struct {
	Op       Op     `json:"operation"`
	Path     string `json:"path"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// Diff is an ordered change set transforming one content value into
// another. Apply(old, Calculate(old, new)) == new holds canonically for
// all JSON inputs.
type Diff struct {
	Type             Type     `json:"type"`
	Changes          []Change `json:"changes"`
	Size             int64    `json:"size"`
	CompressionRatio float64  `json:"compressionRatio"`
}

// Calculate computes the structural diff transforming old into new.
// Object fields are compared per key and arrays per index; when the two
// roots have incompatible shapes the result degrades to a single full
// replacement.
func Calculate(oldRaw, newRaw json.RawMessage) (*Diff, error) {
	var oldVal, newVal any
	if err := json.Unmarshal(oldRaw, &oldVal); err != nil {
		return nil, fmt.Errorf("decode old content: %w", err)
	}
	if err := json.Unmarshal(newRaw, &newVal); err != nil {
		return nil, fmt.Errorf("decode new content: %w", err)
	}

	d := &Diff{Type: TypeIncremental}
	if structural(oldVal, newVal) {
		d.Changes = walk("", oldVal, newVal, nil)
	} else if !reflect.DeepEqual(oldVal, newVal) {
		d.Type = TypeFull
		d.Changes = []Change{{Op: OpModify, Path: "", OldValue: oldVal, NewValue: newVal}}
	}
	if d.Changes == nil {
		d.Changes = []Change{}
	}

	encoded, err := json.Marshal(d.Changes)
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	d.Size = int64(len(encoded))
	if len(newRaw) > 0 {
		d.CompressionRatio = float64(d.Size) / float64(len(newRaw))
	} else {
		d.CompressionRatio = 1
	}
	return d, nil
}

// Apply transforms content by the given diff and returns the result.
// It is pure: the input bytes are never modified, and a failed apply
// leaves no partial result. Changes referencing unknown paths or stale
// old values return ErrMalformed.
func Apply(content json.RawMessage, d *Diff) (json.RawMessage, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil diff", ErrMalformed)
	}

	var root any
	if err := json.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	for i, c := range d.Changes {
		next, err := applyChange(root, c)
		if err != nil {
			return nil, fmt.Errorf("change %d (%s %q): %w", i, c.Op, c.Path, err)
		}
		root = next
	}

	out, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return out, nil
}

// structural reports whether two values can be compared field by field.
func structural(a, b any) bool {
	switch a.(type) {
	case map[string]any:
		_, ok := b.(map[string]any)
		return ok
	case []any:
		_, ok := b.([]any)
		return ok
	}
	return false
}

// walk recursively diffs a against b, appending changes to out.
func walk(path string, a, b any, out []Change) []Change {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		return walkMap(path, am, bm, out)
	}

	as, aIsArr := a.([]any)
	bs, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		return walkArray(path, as, bs, out)
	}

	if !reflect.DeepEqual(a, b) {
		out = append(out, Change{Op: OpModify, Path: path, OldValue: a, NewValue: b})
	}
	return out
}

func walkMap(path string, a, b map[string]any, out []Change) []Change {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := joinPath(path, escapeSegment(k))
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && !inB:
			out = append(out, Change{Op: OpRemove, Path: child, OldValue: av})
		case !inA && inB:
			out = append(out, Change{Op: OpAdd, Path: child, NewValue: bv})
		case structural(av, bv):
			out = walk(child, av, bv, out)
		case !reflect.DeepEqual(av, bv):
			out = append(out, Change{Op: OpModify, Path: child, OldValue: av, NewValue: bv})
		}
	}
	return out
}

func walkArray(path string, a, b []any, out []Change) []Change {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		child := joinPath(path, strconv.Itoa(i))
		if structural(a[i], b[i]) {
			out = walk(child, a[i], b[i], out)
		} else if !reflect.DeepEqual(a[i], b[i]) {
			out = append(out, Change{Op: OpModify, Path: child, OldValue: a[i], NewValue: b[i]})
		}
	}
	// Tail growth appends in ascending order; tail shrink removes in
	// descending order so each removal stays at the array end.
	for i := len(a); i < len(b); i++ {
		out = append(out, Change{Op: OpAdd, Path: joinPath(path, strconv.Itoa(i)), NewValue: b[i]})
	}
	for i := len(a) - 1; i >= len(b); i-- {
		out = append(out, Change{Op: OpRemove, Path: joinPath(path, strconv.Itoa(i)), OldValue: a[i]})
	}
	return out
}

// applyChange applies one change and returns the (possibly replaced)
// root value.
func applyChange(root any, c Change) (any, error) {
	if c.Path == "" {
		switch c.Op {
		case OpModify:
			if !reflect.DeepEqual(root, c.OldValue) {
				return nil, fmt.Errorf("%w: root value does not match recorded old value", ErrMalformed)
			}
			return c.NewValue, nil
		default:
			return nil, fmt.Errorf("%w: %s not valid at root", ErrMalformed, c.Op)
		}
	}

	segs := strings.Split(c.Path, ".")
	parent, err := descend(root, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	leaf := segs[len(segs)-1]

	switch p := parent.(type) {
	case map[string]any:
		key := unescapeSegment(leaf)
		old, exists := p[key]
		switch c.Op {
		case OpAdd:
			if exists {
				return nil, fmt.Errorf("%w: add to existing key %q", ErrMalformed, key)
			}
			p[key] = c.NewValue
		case OpRemove:
			if !exists {
				return nil, fmt.Errorf("%w: remove missing key %q", ErrMalformed, key)
			}
			if !reflect.DeepEqual(old, c.OldValue) {
				return nil, fmt.Errorf("%w: stale old value at %q", ErrMalformed, key)
			}
			delete(p, key)
		case OpModify:
			if !exists {
				return nil, fmt.Errorf("%w: modify missing key %q", ErrMalformed, key)
			}
			if !reflect.DeepEqual(old, c.OldValue) {
				return nil, fmt.Errorf("%w: stale old value at %q", ErrMalformed, key)
			}
			p[key] = c.NewValue
		default:
			return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformed, c.Op)
		}
		return root, nil

	case []any:
		idx, err := strconv.Atoi(leaf)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric index %q", ErrMalformed, leaf)
		}
		switch c.Op {
		case OpAdd:
			if idx != len(p) {
				return nil, fmt.Errorf("%w: add at index %d of %d-element array", ErrMalformed, idx, len(p))
			}
			return spliceInto(root, segs[:len(segs)-1], append(p, c.NewValue))
		case OpRemove:
			if idx < 0 || idx >= len(p) {
				return nil, fmt.Errorf("%w: remove at index %d of %d-element array", ErrMalformed, idx, len(p))
			}
			if !reflect.DeepEqual(p[idx], c.OldValue) {
				return nil, fmt.Errorf("%w: stale old value at index %d", ErrMalformed, idx)
			}
			return spliceInto(root, segs[:len(segs)-1], append(p[:idx:idx], p[idx+1:]...))
		case OpModify:
			if idx < 0 || idx >= len(p) {
				return nil, fmt.Errorf("%w: modify at index %d of %d-element array", ErrMalformed, idx, len(p))
			}
			if !reflect.DeepEqual(p[idx], c.OldValue) {
				return nil, fmt.Errorf("%w: stale old value at index %d", ErrMalformed, idx)
			}
			p[idx] = c.NewValue
			return root, nil
		default:
			return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformed, c.Op)
		}

	default:
		return nil, fmt.Errorf("%w: path %q traverses a scalar", ErrMalformed, c.Path)
	}
}

// descend walks segs into root and returns the addressed container.
func descend(root any, segs []string) (any, error) {
	cur := root
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[unescapeSegment(seg)]
			if !ok {
				return nil, fmt.Errorf("%w: missing key %q", ErrMalformed, seg)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, fmt.Errorf("%w: bad index %q", ErrMalformed, seg)
			}
			cur = c[idx]
		default:
			return nil, fmt.Errorf("%w: segment %q traverses a scalar", ErrMalformed, seg)
		}
	}
	return cur, nil
}

// spliceInto replaces the array addressed by segs with repl, returning
// the new root. Array append/remove reallocates the slice, so the
// parent's reference has to be rewritten in place.
func spliceInto(root any, segs []string, repl []any) (any, error) {
	if len(segs) == 0 {
		return repl, nil
	}

	parent, err := descend(root, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	leaf := segs[len(segs)-1]

	switch p := parent.(type) {
	case map[string]any:
		p[unescapeSegment(leaf)] = repl
	case []any:
		idx, err := strconv.Atoi(leaf)
		if err != nil || idx < 0 || idx >= len(p) {
			return nil, fmt.Errorf("%w: bad index %q", ErrMalformed, leaf)
		}
		p[idx] = repl
	default:
		return nil, fmt.Errorf("%w: segment %q traverses a scalar", ErrMalformed, leaf)
	}
	return root, nil
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}

// escapeSegment encodes "~" as "~0" and "." as "~1" so object keys
// containing the separator stay addressable.
func escapeSegment(key string) string {
	if !strings.ContainsAny(key, "~.") {
		return key
	}
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, ".", "~1")
}

func unescapeSegment(seg string) string {
	if !strings.Contains(seg, "~") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~1", ".")
	return strings.ReplaceAll(seg, "~0", "~")
}
