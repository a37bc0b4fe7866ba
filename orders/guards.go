/*
guards.go - Status transition rules

RULES:
  - A completed order is immutable: no update and no delete may touch it.
  - Batch orders may not move back from in_progress to pending.
  - A status outside the kind's closed set is rejected.
  - Remaining transitions (including staying on the same status) pass.

The delete guard deliberately matches the update guard. Allowing deletes
of completed orders would silently erase the source of appended ledger
rows.
*/
package orders

import "github.com/warp/inventory-engine/reconcile"

// ValidateTransition checks a requested status change against the kind's
// state machine. from is the persisted status, to the requested one.
func ValidateTransition(kind Kind, from, to Status) error {
	if from == StatusCompleted {
		return &IllegalTransitionError{
			Kind: kind, From: from, To: to,
			Reason: "order is already completed",
		}
	}

	if !kind.Allows(to) {
		return &IllegalTransitionError{
			Kind: kind, From: from, To: to,
			Reason: "status is not valid for this order kind",
		}
	}

	if kind == KindBatch && from == StatusInProgress && to == StatusPending {
		return &IllegalTransitionError{
			Kind: kind, From: from, To: to,
			Reason: "order is already in progress",
		}
	}

	return nil
}

// ValidateDelete checks whether an order may be deleted at all.
func ValidateDelete(kind Kind, current Status) error {
	if current == StatusCompleted {
		return &IllegalTransitionError{
			Kind: kind, From: current, To: current,
			Reason: "completed orders cannot be deleted",
		}
	}
	return nil
}

// completionRequirements lists the merged-order fields that must be
// present and non-null before a kind may enter completed.
func completionRequirements(kind Kind) []string {
	if kind == KindBatch {
		return []string{FieldActualQty, FieldActualCost}
	}
	return nil
}

// ValidateCompletion checks the merged order fields against the kind's
// completion requirements. A field satisfied by the patch or by the
// previously persisted state both count; only absent or null fields fail.
func ValidateCompletion(kind Kind, merged reconcile.Object) error {
	var missing []string
	for _, field := range completionRequirements(kind) {
		if _, ok := FieldDecimal(merged, field); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &MissingCompletionFieldsError{Kind: kind, Fields: missing}
	}
	return nil
}
