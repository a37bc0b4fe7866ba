package orders_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/orders"
	"github.com/warp/inventory-engine/reconcile"
)

// =============================================================================
// TRANSITION RULES
// =============================================================================

func TestValidateTransition_CompletedIsImmutable(t *testing.T) {
	for _, kind := range []orders.Kind{orders.KindPurchase, orders.KindBatch, orders.KindSales} {
		for _, to := range kind.Statuses() {
			err := orders.ValidateTransition(kind, orders.StatusCompleted, to)
			assert.ErrorIs(t, err, orders.ErrIllegalTransition,
				"%s: completed -> %s must be rejected", kind, to)
		}
	}
}

func TestValidateTransition_BatchCannotMoveBackToPending(t *testing.T) {
	err := orders.ValidateTransition(orders.KindBatch, orders.StatusInProgress, orders.StatusPending)

	require.Error(t, err)
	var illegal *orders.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, orders.StatusInProgress, illegal.From)
	assert.Equal(t, orders.StatusPending, illegal.To)
}

func TestValidateTransition_StatusOutsideKindSet(t *testing.T) {
	err := orders.ValidateTransition(orders.KindPurchase, orders.StatusPending, orders.StatusInProgress)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)
}

func TestValidateTransition_AllowedMoves(t *testing.T) {
	cases := []struct {
		kind     orders.Kind
		from, to orders.Status
	}{
		{orders.KindPurchase, orders.StatusPending, orders.StatusPending},
		{orders.KindPurchase, orders.StatusPending, orders.StatusCompleted},
		{orders.KindBatch, orders.StatusPending, orders.StatusInProgress},
		{orders.KindBatch, orders.StatusInProgress, orders.StatusCompleted},
		{orders.KindBatch, orders.StatusPending, orders.StatusCompleted},
		{orders.KindSales, orders.StatusPending, orders.StatusCompleted},
	}

	for _, c := range cases {
		assert.NoError(t, orders.ValidateTransition(c.kind, c.from, c.to),
			"%s: %s -> %s should pass", c.kind, c.from, c.to)
	}
}

func TestValidateDelete_CompletedRejected(t *testing.T) {
	assert.ErrorIs(t, orders.ValidateDelete(orders.KindSales, orders.StatusCompleted),
		orders.ErrIllegalTransition)
	assert.NoError(t, orders.ValidateDelete(orders.KindSales, orders.StatusPending))
	assert.NoError(t, orders.ValidateDelete(orders.KindBatch, orders.StatusInProgress))
}

// =============================================================================
// COMPLETION REQUIREMENTS
// =============================================================================

func TestValidateCompletion_BatchRequiresActualFigures(t *testing.T) {
	// GIVEN: A batch order completing without its production results
	// WHEN: Completion is validated against the merged fields
	// THEN: Both missing fields are reported in one rejection

	err := orders.ValidateCompletion(orders.KindBatch, reconcile.Object{
		orders.FieldStatus: reconcile.String("completed"),
	})

	require.Error(t, err)
	var missing *orders.MissingCompletionFieldsError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{orders.FieldActualQty, orders.FieldActualCost}, missing.Fields)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)
}

func TestValidateCompletion_NullDoesNotSatisfy(t *testing.T) {
	err := orders.ValidateCompletion(orders.KindBatch, reconcile.Object{
		orders.FieldActualQty:  reconcile.Null(),
		orders.FieldActualCost: reconcile.Dec("1.20"),
	})

	var missing *orders.MissingCompletionFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{orders.FieldActualQty}, missing.Fields)
}

func TestValidateCompletion_MergedStateCounts(t *testing.T) {
	// Values satisfied by the previously persisted state pass even when the
	// completing patch doesn't repeat them.
	err := orders.ValidateCompletion(orders.KindBatch, reconcile.Object{
		orders.FieldActualQty:  reconcile.Dec("480"),
		orders.FieldActualCost: reconcile.Dec("1.20"),
	})
	assert.NoError(t, err)
}

func TestValidateCompletion_OtherKindsUnconstrained(t *testing.T) {
	assert.NoError(t, orders.ValidateCompletion(orders.KindPurchase, reconcile.Object{}))
	assert.NoError(t, orders.ValidateCompletion(orders.KindSales, reconcile.Object{}))
}
