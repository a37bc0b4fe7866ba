package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/orders"
	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/stockledger"
	"github.com/warp/inventory-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func pendingOrder(kind orders.Kind, items ...reconcile.Object) *orders.Order {
	return &orders.Order{
		Kind: kind,
		Fields: reconcile.Object{
			orders.FieldStatus: reconcile.String(string(orders.StatusPending)),
		},
		LineItems: items,
	}
}

// =============================================================================
// ORDER ROUND TRIPS
// =============================================================================

func TestStore_CreateAndGetOrder(t *testing.T) {
	// GIVEN: An order tree with a line item and a consumption child
	// WHEN: Persisted and loaded back
	// THEN: The tree survives intact, with server-assigned identities

	st := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder(orders.KindSales, reconcile.Object{
		orders.FieldInventoryID: reconcile.String("beer"),
		orders.FieldQuantity:    reconcile.Dec("24.5"),
		orders.ConsumptionsKey: reconcile.Array{
			reconcile.Object{
				orders.FieldLotID:    reconcile.String("lot-1"),
				orders.FieldQuantity: reconcile.Dec("24.5"),
			},
		},
	})
	require.NoError(t, st.CreateOrder(ctx, order))
	assert.NotEmpty(t, order.ID)
	assert.EqualValues(t, 1, order.Seq)

	loaded, err := st.GetOrder(ctx, orders.KindSales, order.ID)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, loaded.Status())
	require.Len(t, loaded.LineItems, 1)

	li := loaded.LineItems[0]
	qty, ok := orders.FieldDecimal(li, orders.FieldQuantity)
	require.True(t, ok)
	assert.True(t, qty.Equal(decimal.RequireFromString("24.5")), "decimals survive the round trip")

	itemID, ok := orders.FieldString(li, orders.LineItemIdentity)
	require.True(t, ok)
	assert.NotEmpty(t, itemID)

	children, ok := li[orders.ConsumptionsKey].(reconcile.Array)
	require.True(t, ok)
	require.Len(t, children, 1)
	child := children[0].(reconcile.Object)
	childID, ok := orders.FieldString(child, orders.ConsumptionIdent)
	require.True(t, ok)
	assert.NotEmpty(t, childID)
	lotID, _ := orders.FieldString(child, orders.FieldLotID)
	assert.Equal(t, "lot-1", lotID)
}

func TestStore_GetOrder_WrongKindOrMissing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder(orders.KindPurchase)
	require.NoError(t, st.CreateOrder(ctx, order))

	_, err := st.GetOrder(ctx, orders.KindSales, order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound, "kind is part of the key")

	_, err = st.GetOrder(ctx, orders.KindPurchase, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestStore_SequencesCountPerKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	po1 := pendingOrder(orders.KindPurchase)
	po2 := pendingOrder(orders.KindPurchase)
	bo1 := pendingOrder(orders.KindBatch)
	require.NoError(t, st.CreateOrder(ctx, po1))
	require.NoError(t, st.CreateOrder(ctx, po2))
	require.NoError(t, st.CreateOrder(ctx, bo1))

	assert.Equal(t, "PO-000001", po1.Code())
	assert.Equal(t, "PO-000002", po2.Code())
	assert.Equal(t, "BO-000001", bo1.Code())
}

func TestStore_UpdateOrder_PatchAndInstructions(t *testing.T) {
	// GIVEN: A stored order with one line item
	// WHEN: A sparse patch plus create/delete instructions are applied
	// THEN: Scalars merge, the old item is gone and the new one persisted

	st := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder(orders.KindPurchase, reconcile.Object{
		orders.FieldInventoryID: reconcile.String("malt"),
		orders.FieldQuantity:    reconcile.Dec("10"),
	})
	require.NoError(t, st.CreateOrder(ctx, order))
	oldItemID, _ := orders.FieldString(order.LineItems[0], orders.LineItemIdentity)

	updated, err := st.UpdateOrder(ctx, orders.KindPurchase, order.ID,
		reconcile.Object{"supplier": reconcile.String("acme")},
		reconcile.Result{
			Create: []reconcile.Record{{Fields: reconcile.Object{
				orders.FieldInventoryID: reconcile.String("hops"),
				orders.FieldQuantity:    reconcile.Dec("3"),
			}}},
			DeleteIDs: []string{oldItemID},
		})
	require.NoError(t, err)

	supplier, _ := orders.FieldString(updated.Fields, "supplier")
	assert.Equal(t, "acme", supplier)
	assert.Equal(t, orders.StatusPending, updated.Status(), "untouched fields survive the patch")

	require.Len(t, updated.LineItems, 1)
	inv, _ := orders.FieldString(updated.LineItems[0], orders.FieldInventoryID)
	assert.Equal(t, "hops", inv)
	newItemID, _ := orders.FieldString(updated.LineItems[0], orders.LineItemIdentity)
	assert.NotEqual(t, oldItemID, newItemID)
}

func TestStore_DeleteOrder_Cascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder(orders.KindPurchase, reconcile.Object{
		orders.FieldInventoryID: reconcile.String("malt"),
	})
	require.NoError(t, st.CreateOrder(ctx, order))

	require.NoError(t, st.DeleteOrder(ctx, orders.KindPurchase, order.ID))
	_, err := st.GetOrder(ctx, orders.KindPurchase, order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	assert.ErrorIs(t, st.DeleteOrder(ctx, orders.KindPurchase, order.ID), orders.ErrOrderNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder(orders.KindPurchase)
	err := st.WithTx(ctx, func(ts orders.Store) error {
		if err := ts.CreateOrder(ctx, order); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	_, err = st.GetOrder(ctx, orders.KindPurchase, order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound, "nothing persists after rollback")
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_LedgerQueries(t *testing.T) {
	// GIVEN: Two malt lots (10 @ 2.00, 5 @ 3.00) and 4 units consumed
	//        from the first
	// WHEN: The ledger views are queried
	// THEN: remaining = 11 units / 27.00, the drill-down lists both lots
	//       oldest first, and the summary conserves in - out = remaining

	st := newTestStore(t)
	ctx := context.Background()

	lots := []stockledger.Lot{
		{InventoryID: "malt", QuantityIn: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("2.00")},
		{InventoryID: "malt", QuantityIn: decimal.NewFromInt(5), UnitCost: decimal.RequireFromString("3.00")},
	}
	require.NoError(t, st.AppendLots(ctx, lots))
	assert.EqualValues(t, 1, lots[0].Sequence)
	assert.EqualValues(t, 2, lots[1].Sequence)

	consumer := pendingOrder(orders.KindSales, reconcile.Object{
		orders.FieldInventoryID: reconcile.String("malt"),
		orders.ConsumptionsKey: reconcile.Array{
			reconcile.Object{
				orders.FieldLotID:    reconcile.String(lots[0].LotID),
				orders.FieldQuantity: reconcile.Dec("4"),
			},
		},
	})
	require.NoError(t, st.CreateOrder(ctx, consumer))

	balance, err := st.RemainingForItem(ctx, "malt")
	require.NoError(t, err)
	assert.True(t, balance.RemainingQuantity.Equal(decimal.NewFromInt(11)))
	assert.True(t, balance.RemainingCost.Equal(decimal.NewFromInt(27)))

	history, err := st.LotHistory(ctx, "malt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, lots[0].LotID, history[0].Lot.LotID)
	assert.True(t, history[0].RemainingQuantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, history[1].RemainingQuantity.Equal(decimal.NewFromInt(5)))

	summary, err := st.ItemSummary(ctx, "malt")
	require.NoError(t, err)
	assert.True(t, summary.TotalQuantityIn.Equal(decimal.NewFromInt(15)))
	assert.True(t, summary.Remaining.RemainingQuantity.Equal(
		summary.TotalQuantityIn.Sub(summary.TotalQuantityOut)))
}

func TestStore_LedgerQueries_UnknownItem(t *testing.T) {
	st := newTestStore(t)

	balance, err := st.RemainingForItem(context.Background(), "nothing")
	require.NoError(t, err)
	assert.True(t, balance.RemainingQuantity.IsZero())
	assert.True(t, balance.RemainingCost.IsZero())
}

// =============================================================================
// AUDIT SINK
// =============================================================================

func TestStore_Record_PersistsAuditEntry(t *testing.T) {
	st := newTestStore(t)

	err := st.Record(context.Background(), orders.AuditEntry{
		ID:     "audit-1",
		UserID: "user-1",
		Status: orders.AuditSuccess,
		Action: orders.ActionUpdate,
		Target: &orders.TargetRef{Key: "order_id", Value: "ord-1"},
		UpdatedFields: []reconcile.DiffEntry{
			{Key: "status", Current: reconcile.String("completed"), Previous: reconcile.String("pending")},
		},
		At: time.Now().UTC(),
	})
	assert.NoError(t, err)

	err = st.Record(context.Background(), orders.AuditEntry{
		ID:     "audit-2",
		Status: orders.AuditFailed,
		Action: orders.ActionDelete,
		Error:  "order not found",
		At:     time.Now().UTC(),
	})
	assert.NoError(t, err)
}
