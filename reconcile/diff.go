/*
diff.go - Deep structural diff over value trees

PURPOSE:
  Computes what changed between a submitted tree and its persisted state.
  The result has two shapes for two consumers:
  - entries: flat dotted-path DiffEntry list, for the audit trail
  - patch:   sparse nested Object holding only changed leaves, for storage

WALK SEMANTICS:
  The walk is keyed by the CURRENT tree. Keys present only in the previous
  tree are not visited. This asymmetry is intentional: the diff reports
  what is different about the new value relative to the old, not the
  reverse.

LEAVES:
  Scalars and Arrays are leaves. Arrays are compared by deep equality as
  whole values; splitting an array into keyed records is the caller's job
  (see collection.go). A position where one side is an object and the
  other is not is also a leaf.

ROUND-TRIP LAW:
  ApplyPatch(previous, patch) reproduces current for every field the
  patch references.

SEE ALSO:
  - value.go:      The Value sum type
  - collection.go: Uses Diff for per-record sparse patches
*/
package reconcile

import "strings"

// =============================================================================
// DIFF ENTRY - One changed leaf
// =============================================================================

// DiffEntry records a single changed leaf position. Current and Previous
// are normalized to explicit null when a side is missing, for storage
// layers that require explicit nulling rather than field omission.
type DiffEntry struct {
	Key      string `json:"key"`
	Current  Value  `json:"current_value"`
	Previous Value  `json:"previous_value"`
}

// =============================================================================
// DIFF
// =============================================================================

// Diff compares current against previous. If the trees are deeply equal it
// returns (nil, nil). Otherwise patch contains exactly the changed leaves,
// nested as in the original trees, and entries lists them with dotted
// paths. Pure function, no side effects on either input.
func Diff(current, previous Object) (Object, []DiffEntry) {
	if current.Equal(previous) {
		return nil, nil
	}

	var entries []DiffEntry
	collectDiffs(current, previous, "", &entries)

	return BuildPatch(entries), entries
}

func collectDiffs(current, previous Value, path string, entries *[]DiffEntry) {
	if current != nil && previous != nil && current.Equal(previous) {
		return
	}

	curObj, curIsObj := current.(Object)
	prevObj, prevIsObj := previous.(Object)

	if curIsObj && prevIsObj {
		for _, k := range curObj.Keys() {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			collectDiffs(curObj[k], prevObj[k], childPath, entries)
		}
		return
	}

	*entries = append(*entries, DiffEntry{
		Key:      path,
		Current:  normalize(current),
		Previous: normalize(previous),
	})
}

// normalize maps a missing side to explicit null.
func normalize(v Value) Value {
	if v == nil {
		return Null()
	}
	return v
}

// =============================================================================
// PATCH CONSTRUCTION AND APPLICATION
// =============================================================================

// BuildPatch re-nests a set of diff entries into a sparse tree whose
// leaves are each entry's current value. Intermediate path segments become
// nested objects. Returns nil for an empty entry set.
func BuildPatch(entries []DiffEntry) Object {
	if len(entries) == 0 {
		return nil
	}

	patch := Object{}
	for _, e := range entries {
		segments := strings.Split(e.Key, ".")
		level := patch
		for i, seg := range segments {
			if i == len(segments)-1 {
				level[seg] = cloneOrNull(e.Current)
				break
			}
			next, ok := level[seg].(Object)
			if !ok {
				next = Object{}
				level[seg] = next
			}
			level = next
		}
	}
	return patch
}

// ApplyPatch deep-merges patch over base and returns a new tree. Objects
// merge key by key; any other patch value replaces the base value at that
// position. Neither input is modified.
func ApplyPatch(base, patch Object) Object {
	out := base.CloneObject()
	if out == nil {
		out = Object{}
	}
	for k, pv := range patch {
		pObj, pIsObj := pv.(Object)
		bObj, bIsObj := out[k].(Object)
		if pIsObj && bIsObj {
			out[k] = ApplyPatch(bObj, pObj)
			continue
		}
		out[k] = cloneOrNull(pv)
	}
	return out
}

func cloneOrNull(v Value) Value {
	if v == nil {
		return Null()
	}
	return v.Clone()
}
