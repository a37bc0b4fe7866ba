/*
pipeline.go - Create/Update/Delete orchestration

UPDATE FLOW:
  1. Load the previous order with nested children.
  2. Reject if the previous status is completed (immutable), or if the
     requested transition is illegal for the kind.
  3. Deep-diff the incoming tree against the previous tree. No change
     means a no-op update: return the previous order, still a success.
  4. Reconcile the line-item collections into create/update/delete
     instructions, recursing into consumption children.
  5. Apply the scalar patch and the instructions in one atomic store
     transaction. On the transition into completed, and only then,
     append the derived stock lots inside the same transaction.
  6. Record an audit entry with the DiffEntry list, tagged success or
     failed, regardless of transaction outcome.

On any failure inside the transaction the whole transaction rolls back
and nothing partially persists. The pipeline never retries; business
rejections propagate typed to the caller.
*/
package orders

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/stockledger"
)

// Pipeline orchestrates order mutations against an injected store.
// Audit, Log and Now are optional; the zero values mean no audit sink,
// silent logging and wall-clock time.
type Pipeline struct {
	Store Store
	Audit Sink
	Log   logrus.FieldLogger
	Now   func() time.Time
}

func NewPipeline(store Store) *Pipeline {
	return &Pipeline{Store: store}
}

// =============================================================================
// CREATE
// =============================================================================

// Create persists a new order. Status defaults to pending; new orders
// may not start further along their lifecycle than that.
func (p *Pipeline) Create(ctx context.Context, kind Kind, req UpdateRequest, actorID string) (*Order, error) {
	fields := req.Fields.CloneObject()
	if fields == nil {
		fields = reconcile.Object{}
	}
	if _, ok := FieldString(fields, FieldStatus); !ok {
		fields[FieldStatus] = reconcile.String(string(StatusPending))
	}

	status := Status(mustFieldString(fields, FieldStatus))
	if status != StatusPending {
		err := &IllegalTransitionError{
			Kind: kind, From: StatusPending, To: status,
			Reason: "new orders start as pending",
		}
		p.recordFailure(ctx, actorID, ActionCreate, nil, err)
		return nil, err
	}

	order := &Order{Kind: kind, Fields: fields}
	order.LineItems = make([]reconcile.Object, len(req.LineItems))
	for i, li := range req.LineItems {
		order.LineItems[i] = li.CloneObject()
	}

	if err := p.Store.CreateOrder(ctx, order); err != nil {
		p.recordFailure(ctx, actorID, ActionCreate, nil, err)
		return nil, err
	}

	_, entries := reconcile.Diff(order.Tree(), reconcile.Object{})
	p.recordSuccess(ctx, actorID, ActionCreate, &TargetRef{Key: "order_id", Value: order.ID}, entries)
	p.logger().WithFields(logrus.Fields{
		"kind": kind, "order": order.Code(),
	}).Info("order created")

	return order, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies an incoming payload to an existing order. Returns the
// updated order, or the previous order unchanged for a no-op update.
func (p *Pipeline) Update(ctx context.Context, kind Kind, orderID string, req UpdateRequest, actorID string) (*Order, error) {
	target := &TargetRef{Key: "order_id", Value: orderID}

	prev, err := p.Store.GetOrder(ctx, kind, orderID)
	if err != nil {
		p.recordFailure(ctx, actorID, ActionUpdate, target, err)
		return nil, err
	}

	next, hasNext := req.TargetStatus()
	if !hasNext {
		next = prev.Status()
	}
	if err := ValidateTransition(kind, prev.Status(), next); err != nil {
		p.recordFailure(ctx, actorID, ActionUpdate, target, err)
		return nil, err
	}

	patch, entries := reconcile.Diff(req.Tree(), prev.Tree())
	if patch == nil {
		// No-op update, still a success.
		return prev, nil
	}

	items, err := reconcile.ReconcileCollection(req.LineItems, prev.LineItems, LineItemIdentity, kind.nestedSpecs())
	if err != nil {
		p.recordFailure(ctx, actorID, ActionUpdate, target, err)
		return nil, err
	}

	scalarPatch := patch.CloneObject()
	delete(scalarPatch, FieldLineItems)

	now := p.now()
	merged := reconcile.ApplyPatch(prev.Fields, scalarPatch)
	completing := next == StatusCompleted && prev.Status() != StatusCompleted
	if completing {
		if err := ValidateCompletion(kind, merged); err != nil {
			p.recordFailure(ctx, actorID, ActionUpdate, target, err)
			return nil, err
		}
		scalarPatch[FieldActualDate] = timeScalar(now)
	}
	if kind == KindBatch && prev.Status() == StatusPending && next == StatusInProgress {
		scalarPatch[FieldStartedAt] = timeScalar(now)
	}

	var updated *Order
	txErr := p.Store.WithTx(ctx, func(s Store) error {
		var err error
		updated, err = s.UpdateOrder(ctx, kind, orderID, scalarPatch, items)
		if err != nil {
			return err
		}
		if completing {
			if lots := deriveLots(kind, orderID, updated, now); len(lots) > 0 {
				return s.AppendLots(ctx, lots)
			}
		}
		return nil
	})
	if txErr != nil {
		p.recordFailure(ctx, actorID, ActionUpdate, target, txErr)
		p.logger().WithError(txErr).WithFields(logrus.Fields{
			"kind": kind, "order_id": orderID,
		}).Error("order update rolled back")
		return nil, txErr
	}

	p.recordSuccess(ctx, actorID, ActionUpdate, target, entries)
	p.logger().WithFields(logrus.Fields{
		"kind": kind, "order": updated.Code(), "status": updated.Status(),
	}).Info("order updated")

	return updated, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes an order and its nested children. Completed orders are
// immutable and cannot be deleted either.
func (p *Pipeline) Delete(ctx context.Context, kind Kind, orderID string, actorID string) (*Order, error) {
	target := &TargetRef{Key: "order_id", Value: orderID}

	prev, err := p.Store.GetOrder(ctx, kind, orderID)
	if err != nil {
		p.recordFailure(ctx, actorID, ActionDelete, target, err)
		return nil, err
	}
	if err := ValidateDelete(kind, prev.Status()); err != nil {
		p.recordFailure(ctx, actorID, ActionDelete, target, err)
		return nil, err
	}

	if err := p.Store.DeleteOrder(ctx, kind, orderID); err != nil {
		p.recordFailure(ctx, actorID, ActionDelete, target, err)
		return nil, err
	}

	p.recordSuccess(ctx, actorID, ActionDelete, target, nil)
	return prev, nil
}

// =============================================================================
// LEDGER SIDE EFFECTS
// =============================================================================

// deriveLots builds the stock-in rows appended on the transition into
// completed. Purchase orders receive one lot per line item; batch orders
// receive one lot of the produced item from the actual production
// figures. Sales orders deplete stock through their consumption children
// and append nothing here.
func deriveLots(kind Kind, orderID string, updated *Order, now time.Time) []stockledger.Lot {
	switch kind {
	case KindPurchase:
		lots := make([]stockledger.Lot, 0, len(updated.LineItems))
		for _, li := range updated.LineItems {
			qty, _ := FieldDecimal(li, FieldQuantity)
			cost, _ := FieldDecimal(li, FieldUnitCost)
			inventoryID, _ := FieldString(li, FieldInventoryID)
			itemID, _ := FieldString(li, LineItemIdentity)
			lots = append(lots, stockledger.Lot{
				InventoryID:   inventoryID,
				QuantityIn:    qty,
				UnitCost:      cost,
				SourceOrderID: orderID,
				SourceItemID:  itemID,
				CreatedAt:     now,
			})
		}
		return lots

	case KindBatch:
		qty, _ := FieldDecimal(updated.Fields, FieldActualQty)
		cost, _ := FieldDecimal(updated.Fields, FieldActualCost)
		return []stockledger.Lot{{
			InventoryID:   updated.InventoryID(),
			QuantityIn:    qty,
			UnitCost:      cost,
			SourceOrderID: orderID,
			CreatedAt:     now,
		}}

	default:
		return nil
	}
}

// nestedSpecs names the sub-collections reconciled within this kind's
// line items. Purchase order items have no children.
func (k Kind) nestedSpecs() []reconcile.NestedSpec {
	if k == KindPurchase {
		return nil
	}
	return []reconcile.NestedSpec{{Key: ConsumptionsKey, IdentityKey: ConsumptionIdent}}
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

var silentLog = func() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	return silentLog
}

func (p *Pipeline) recordSuccess(ctx context.Context, actorID string, action ActionType, target *TargetRef, entries []reconcile.DiffEntry) {
	p.record(ctx, AuditEntry{
		UserID:        actorID,
		Status:        AuditSuccess,
		Action:        action,
		Target:        target,
		UpdatedFields: entries,
	})
}

func (p *Pipeline) recordFailure(ctx context.Context, actorID string, action ActionType, target *TargetRef, cause error) {
	p.record(ctx, AuditEntry{
		UserID: actorID,
		Status: AuditFailed,
		Action: action,
		Target: target,
		Error:  cause.Error(),
	})
}

// record is fire-and-forget: a failing audit sink never fails the
// primary operation.
func (p *Pipeline) record(ctx context.Context, entry AuditEntry) {
	if p.Audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.At = p.now()
	if err := p.Audit.Record(ctx, entry); err != nil {
		p.logger().WithError(err).Warn("audit entry dropped")
	}
}

func timeScalar(t time.Time) reconcile.Scalar {
	return reconcile.String(t.UTC().Format(time.RFC3339))
}

func mustFieldString(obj reconcile.Object, key string) string {
	s, _ := FieldString(obj, key)
	return s
}
