/*
collection.go - Keyed-collection reconciliation

PURPOSE:
  Converts a desired-state collection and its persisted state into
  create/update/delete instructions. Records match by a designated
  identity field; matched records get a sparse patch, unmatched current
  records become creates, and previous-only identities become deletes.

GUARANTEE:
  Every record in current lands in exactly one of Create/Update. Every
  identity present only in previous lands in DeleteIDs exactly once. No
  record is silently dropped. Two current records with the same identity
  are rejected with ErrDuplicateIdentity rather than last-write-wins.

NESTING:
  A record may own named sub-collections (e.g. a batch line item owning
  its stock consumptions). NestedSpec names those fields and their own
  identity keys; reconciliation recurses into them. Nesting depth is
  bounded by the static schema, so no cycle detection is needed.

SEE ALSO:
  - diff.go: Sparse per-record patches
*/
package reconcile

// =============================================================================
// SPECS AND RESULTS
// =============================================================================

// NestedSpec names a sub-collection field within a record and the identity
// key its children match by. Nested specs may themselves nest.
type NestedSpec struct {
	Key         string
	IdentityKey string
	Nested      []NestedSpec
}

// Record is a create instruction: the record's scalar fields with the
// identity field stripped (it is server-assigned) and nested collections
// split out as their own instruction sets.
type Record struct {
	Fields Object
	Nested map[string]Result
}

// UpdateInstruction is an update for one matched record: a sparse patch of
// its changed fields plus instruction sets for its sub-collections. Patch
// is empty (not nil) when the record's own fields are unchanged.
type UpdateInstruction struct {
	Identity string
	Patch    Object
	Nested   map[string]Result
}

// Result partitions a collection into create/update/delete instructions.
// A storage layer executes all three within one atomic unit.
type Result struct {
	Create    []Record
	Update    []UpdateInstruction
	DeleteIDs []string
}

// Empty reports whether the result carries no instructions at all.
func (r Result) Empty() bool {
	if len(r.Create) > 0 || len(r.DeleteIDs) > 0 {
		return false
	}
	for _, u := range r.Update {
		if len(u.Patch) > 0 {
			return false
		}
		for _, n := range u.Nested {
			if !n.Empty() {
				return false
			}
		}
	}
	return true
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileCollection classifies each current record against previous by
// the identity field. Order of current is preserved in Create/Update;
// DeleteIDs follow previous order. Records without an identity value are
// treated as creates.
func ReconcileCollection(current, previous []Object, identityKey string, nested []NestedSpec) (Result, error) {
	prevByID := make(map[string]Object, len(previous))
	for _, rec := range previous {
		if id, ok := identityOf(rec, identityKey); ok {
			prevByID[id] = rec
		}
	}

	var result Result
	seen := make(map[string]bool, len(current))

	for _, rec := range current {
		id, hasID := identityOf(rec, identityKey)
		if hasID && seen[id] {
			return Result{}, &DuplicateIdentityError{IdentityKey: identityKey, Identity: id}
		}
		if hasID {
			seen[id] = true
		}

		prev, matched := prevByID[id]
		if !hasID || !matched {
			create, err := buildCreate(rec, identityKey, nested)
			if err != nil {
				return Result{}, err
			}
			result.Create = append(result.Create, create)
			continue
		}

		update, err := buildUpdate(id, rec, prev, nested)
		if err != nil {
			return Result{}, err
		}
		result.Update = append(result.Update, update)
		delete(prevByID, id)
	}

	// Anything left in the lookup exists only in previous: delete it.
	for _, rec := range previous {
		if id, ok := identityOf(rec, identityKey); ok {
			if _, remains := prevByID[id]; remains {
				result.DeleteIDs = append(result.DeleteIDs, id)
			}
		}
	}

	return result, nil
}

func buildCreate(rec Object, identityKey string, nested []NestedSpec) (Record, error) {
	fields, nestedArrays, err := splitNested(rec, nested)
	if err != nil {
		return Record{}, err
	}
	delete(fields, identityKey)

	out := Record{Fields: fields}
	for _, spec := range nested {
		children, ok := nestedArrays[spec.Key]
		if !ok {
			continue
		}
		// All children of a brand-new record are creates.
		sub, err := ReconcileCollection(children, nil, spec.IdentityKey, spec.Nested)
		if err != nil {
			return Record{}, err
		}
		if out.Nested == nil {
			out.Nested = make(map[string]Result, len(nested))
		}
		out.Nested[spec.Key] = sub
	}
	return out, nil
}

func buildUpdate(id string, rec, prev Object, nested []NestedSpec) (UpdateInstruction, error) {
	curFields, curNested, err := splitNested(rec, nested)
	if err != nil {
		return UpdateInstruction{}, err
	}
	prevFields, prevNested, err := splitNested(prev, nested)
	if err != nil {
		return UpdateInstruction{}, err
	}

	patch, _ := Diff(curFields, prevFields)
	if patch == nil {
		patch = Object{}
	}

	out := UpdateInstruction{Identity: id, Patch: patch}
	for _, spec := range nested {
		children, ok := curNested[spec.Key]
		if !ok {
			continue
		}
		sub, err := ReconcileCollection(children, prevNested[spec.Key], spec.IdentityKey, spec.Nested)
		if err != nil {
			return UpdateInstruction{}, err
		}
		if out.Nested == nil {
			out.Nested = make(map[string]Result, len(nested))
		}
		out.Nested[spec.Key] = sub
	}
	return out, nil
}

// splitNested separates a record into its scalar fields and the arrays
// named by the nested specs. Nested fields that are present but not
// arrays stay in fields untouched.
func splitNested(rec Object, nested []NestedSpec) (Object, map[string][]Object, error) {
	fields := rec.CloneObject()
	arrays := make(map[string][]Object, len(nested))

	for _, spec := range nested {
		arr, ok := fields[spec.Key].(Array)
		if !ok {
			continue
		}
		children := make([]Object, len(arr))
		for i, v := range arr {
			child, ok := v.(Object)
			if !ok {
				return nil, nil, &NotAnObjectError{Key: spec.Key}
			}
			children[i] = child
		}
		arrays[spec.Key] = children
		delete(fields, spec.Key)
	}
	return fields, arrays, nil
}

// identityOf extracts a record's identity value as a string. Absent or
// null identity fields report false.
func identityOf(rec Object, identityKey string) (string, bool) {
	v, ok := rec[identityKey]
	if !ok {
		return "", false
	}
	s, ok := v.(Scalar)
	if !ok || s.IsNull() {
		return "", false
	}
	return s.StringValue(), true
}
