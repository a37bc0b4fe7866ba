/*
Package store provides the in-memory orders.Store used by tests and
local development.

The memory store keeps whole order trees in maps guarded by one RWMutex
and deep-clones on every boundary so callers never alias internal state.
WithTx runs the function against the store directly: partial effects of
a failed function are NOT rolled back, which is acceptable for tests
that assert on the error path before inspecting state.

It doubles as an orders.Sink so pipeline tests can assert on the
recorded audit trail.
*/
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/inventory-engine/orders"
	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/stockledger"
)

// childIdentityKeys maps a nested collection field to the identity key
// its records match by, for applying reconciliation results.
var childIdentityKeys = map[string]string{
	orders.ConsumptionsKey: orders.ConsumptionIdent,
}

type Memory struct {
	mu     sync.RWMutex
	orders map[orders.Kind]map[string]*orders.Order
	seqs   map[string]int64
	lots   []stockledger.Lot
	audits []orders.AuditEntry
	nowFn  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders: map[orders.Kind]map[string]*orders.Order{
			orders.KindPurchase: {},
			orders.KindBatch:    {},
			orders.KindSales:    {},
		},
		seqs:  map[string]int64{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides wall-clock time for tests.
func (m *Memory) SetClock(now func() time.Time) { m.nowFn = now }

// =============================================================================
// orders.Store
// =============================================================================

func (m *Memory) GetOrder(ctx context.Context, kind orders.Kind, orderID string) (*orders.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[kind][orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *Memory) CreateOrder(ctx context.Context, order *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	order.ID = uuid.NewString()
	order.Seq = m.nextSeq("order:" + string(order.Kind))
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.LineItems {
		assignChildIDs(order.LineItems, i)
	}

	m.orders[order.Kind][order.ID] = cloneOrder(order)
	return nil
}

func (m *Memory) UpdateOrder(ctx context.Context, kind orders.Kind, orderID string, patch reconcile.Object, items reconcile.Result) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[kind][orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}

	order.Fields = reconcile.ApplyPatch(order.Fields, patch)
	order.LineItems = applyCollection(order.LineItems, items, orders.LineItemIdentity)
	order.UpdatedAt = m.nowFn()

	return cloneOrder(order), nil
}

func (m *Memory) DeleteOrder(ctx context.Context, kind orders.Kind, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[kind][orderID]; !ok {
		return orders.ErrOrderNotFound
	}
	delete(m.orders[kind], orderID)
	return nil
}

func (m *Memory) AppendLots(ctx context.Context, lots []stockledger.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lot := range lots {
		lot.LotID = uuid.NewString()
		lot.Sequence = m.nextSeq("lot:" + lot.InventoryID)
		if lot.CreatedAt.IsZero() {
			lot.CreatedAt = m.nowFn()
		}
		m.lots = append(m.lots, lot)
	}
	return nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(orders.Store) error) error {
	return fn(m)
}

// =============================================================================
// orders.Sink
// =============================================================================

func (m *Memory) Record(ctx context.Context, entry orders.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

// =============================================================================
// TEST ACCESSORS
// =============================================================================

// Lots returns a copy of the appended stock-in rows in append order.
func (m *Memory) Lots() []stockledger.Lot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]stockledger.Lot, len(m.lots))
	copy(out, m.lots)
	return out
}

// Consumptions flattens the stock-consumption children of every stored
// order into ledger rows.
func (m *Memory) Consumptions() []stockledger.Consumption {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stockledger.Consumption
	for _, byID := range m.orders {
		for _, order := range byID {
			for _, li := range order.LineItems {
				itemID, _ := orders.FieldString(li, orders.LineItemIdentity)
				arr, _ := li[orders.ConsumptionsKey].(reconcile.Array)
				for _, v := range arr {
					child, ok := v.(reconcile.Object)
					if !ok {
						continue
					}
					id, _ := orders.FieldString(child, orders.ConsumptionIdent)
					lotID, _ := orders.FieldString(child, orders.FieldLotID)
					qty, _ := orders.FieldDecimal(child, orders.FieldQuantity)
					out = append(out, stockledger.Consumption{
						ConsumptionID: id,
						LotID:         lotID,
						LineItemID:    itemID,
						QuantityOut:   qty,
					})
				}
			}
		}
	}
	return out
}

// Audits returns the recorded audit trail in append order.
func (m *Memory) Audits() []orders.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]orders.AuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

// =============================================================================
// INTERNALS
// =============================================================================

func (m *Memory) nextSeq(scope string) int64 {
	m.seqs[scope]++
	return m.seqs[scope]
}

func cloneOrder(o *orders.Order) *orders.Order {
	out := *o
	out.Fields = o.Fields.CloneObject()
	out.LineItems = make([]reconcile.Object, len(o.LineItems))
	for i, li := range o.LineItems {
		out.LineItems[i] = li.CloneObject()
	}
	return &out
}

// assignChildIDs gives the i-th line item an identity if it lacks one,
// and does the same for its consumption children.
func assignChildIDs(items []reconcile.Object, i int) {
	li := items[i]
	if _, ok := orders.FieldString(li, orders.LineItemIdentity); !ok {
		li[orders.LineItemIdentity] = reconcile.String(uuid.NewString())
	}
	arr, ok := li[orders.ConsumptionsKey].(reconcile.Array)
	if !ok {
		return
	}
	for _, v := range arr {
		child, ok := v.(reconcile.Object)
		if !ok {
			continue
		}
		if _, ok := orders.FieldString(child, orders.ConsumptionIdent); !ok {
			child[orders.ConsumptionIdent] = reconcile.String(uuid.NewString())
		}
	}
}

// applyCollection executes a reconciliation result against the stored
// collection: creates append, updates patch in place, deletes remove.
func applyCollection(existing []reconcile.Object, res reconcile.Result, identityKey string) []reconcile.Object {
	byID := make(map[string]int, len(existing))
	for i, rec := range existing {
		if id, ok := orders.FieldString(rec, identityKey); ok {
			byID[id] = i
		}
	}

	for _, upd := range res.Update {
		i, ok := byID[upd.Identity]
		if !ok {
			continue
		}
		rec := reconcile.ApplyPatch(existing[i], upd.Patch)
		for key, sub := range upd.Nested {
			rec[key] = applyNested(rec[key], sub, childIdentityKeys[key])
		}
		existing[i] = rec
	}

	deleted := make(map[string]bool, len(res.DeleteIDs))
	for _, id := range res.DeleteIDs {
		deleted[id] = true
	}
	kept := existing[:0]
	for _, rec := range existing {
		id, ok := orders.FieldString(rec, identityKey)
		if ok && deleted[id] {
			continue
		}
		kept = append(kept, rec)
	}

	for _, create := range res.Create {
		rec := create.Fields.CloneObject()
		rec[identityKey] = reconcile.String(uuid.NewString())
		for key, sub := range create.Nested {
			rec[key] = applyNested(nil, sub, childIdentityKeys[key])
		}
		kept = append(kept, rec)
	}
	return kept
}

func applyNested(current reconcile.Value, res reconcile.Result, identityKey string) reconcile.Array {
	var existing []reconcile.Object
	if arr, ok := current.(reconcile.Array); ok {
		for _, v := range arr {
			if child, ok := v.(reconcile.Object); ok {
				existing = append(existing, child)
			}
		}
	}
	applied := applyCollection(existing, res, identityKey)
	out := make(reconcile.Array, len(applied))
	for i, rec := range applied {
		out[i] = rec
	}
	return out
}
