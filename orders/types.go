/*
Package orders implements the order-update pipeline.

PURPOSE:
  Purchase orders, production batch orders and sales orders share one
  structural pattern: scalar fields, a status with a small linear
  lifecycle, a monotonic display sequence, and an owned collection of
  line items (which may own stock-consumption children). This package
  holds the order model, the per-kind status machines, display codes,
  the audit contract and the pipeline that turns an incoming payload
  into one atomic storage transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind:   purchase | batch | sales, each with its own status set
  - Status: pending -> in_progress -> completed (in_progress is batch-only)
  - Order:  persisted state, fields held as a reconcile.Object tree
  - UpdateRequest: the validated incoming payload

FIELD CONVENTIONS:
  Scalar payload fields live inside Order.Fields under snake_case keys
  ("status", "inventory_id", "actual_quantity", ...). Line items carry
  their identity under "line_item_id" and their consumption children
  under "stock_consumptions", keyed by "consumption_id". IDs and the
  display sequence are server-assigned and live outside Fields.

SEE ALSO:
  - guards.go:   Status transition rules
  - pipeline.go: Create/Update/Delete orchestration
  - audit.go:    The audit sink contract
*/
package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/reconcile"
)

// =============================================================================
// KINDS AND STATUSES
// =============================================================================

type Kind string

const (
	KindPurchase Kind = "purchase"
	KindBatch    Kind = "batch"
	KindSales    Kind = "sales"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses returns the closed status set for this kind. Only batch orders
// pass through in_progress.
func (k Kind) Statuses() []Status {
	if k == KindBatch {
		return []Status{StatusPending, StatusInProgress, StatusCompleted}
	}
	return []Status{StatusPending, StatusCompleted}
}

// Allows reports whether s belongs to this kind's status set.
func (k Kind) Allows(s Status) bool {
	for _, valid := range k.Statuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// CodePrefix returns the display-code prefix for this kind.
func (k Kind) CodePrefix() string {
	switch k {
	case KindPurchase:
		return "PO"
	case KindBatch:
		return "BO"
	case KindSales:
		return "SA"
	default:
		return "XX"
	}
}

// InventoryCodePrefix is the prefix for inventory item display codes.
const InventoryCodePrefix = "IT"

// FormatCode renders a human-readable code from a display sequence:
// FormatCode("BO", 42) == "BO-000042".
func FormatCode(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// =============================================================================
// FIELD KEYS
// =============================================================================

const (
	FieldStatus       = "status"
	FieldInventoryID  = "inventory_id"
	FieldQuantity     = "quantity"
	FieldUnitCost     = "unit_cost"
	FieldLotID        = "lot_id"
	FieldActualQty    = "actual_quantity"
	FieldActualCost   = "actual_unit_cost"
	FieldActualDate   = "actual_date"
	FieldStartedAt    = "processing_started_at"
	FieldLineItems    = "line_items"
	LineItemIdentity  = "line_item_id"
	ConsumptionsKey   = "stock_consumptions"
	ConsumptionIdent  = "consumption_id"
)

// =============================================================================
// ORDER
// =============================================================================

// Order is the persisted state of one order with its nested line items.
// Fields holds the scalar payload tree; ID and Seq are server-assigned.
type Order struct {
	ID        string
	Kind      Kind
	Seq       int64
	Fields    reconcile.Object
	LineItems []reconcile.Object
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status reads the order's status field.
func (o *Order) Status() Status {
	s, _ := FieldString(o.Fields, FieldStatus)
	return Status(s)
}

// InventoryID reads the order's inventory reference (the produced item
// for batch orders).
func (o *Order) InventoryID() string {
	s, _ := FieldString(o.Fields, FieldInventoryID)
	return s
}

// Code renders the human-readable order code, e.g. "PO-000007".
func (o *Order) Code() string {
	return FormatCode(o.Kind.CodePrefix(), o.Seq)
}

// Tree assembles the full value tree (fields plus line items) used for
// change detection against an incoming payload.
func (o *Order) Tree() reconcile.Object {
	tree := o.Fields.CloneObject()
	if tree == nil {
		tree = reconcile.Object{}
	}
	items := make(reconcile.Array, len(o.LineItems))
	for i, li := range o.LineItems {
		items[i] = li.Clone()
	}
	tree[FieldLineItems] = items
	return tree
}

// UpdateRequest is the validated incoming payload for create and update
// operations. Field-level shape validation happens before it gets here;
// the pipeline only enforces business-rule transitions.
type UpdateRequest struct {
	Fields    reconcile.Object
	LineItems []reconcile.Object
}

// Tree assembles the request's value tree, mirroring Order.Tree.
func (r UpdateRequest) Tree() reconcile.Object {
	tree := r.Fields.CloneObject()
	if tree == nil {
		tree = reconcile.Object{}
	}
	items := make(reconcile.Array, len(r.LineItems))
	for i, li := range r.LineItems {
		items[i] = li.Clone()
	}
	tree[FieldLineItems] = items
	return tree
}

// TargetStatus returns the status the request asks for, if any.
func (r UpdateRequest) TargetStatus() (Status, bool) {
	s, ok := FieldString(r.Fields, FieldStatus)
	return Status(s), ok
}

// =============================================================================
// FIELD ACCESS HELPERS
// =============================================================================

// FieldString reads a string scalar from an object tree.
func FieldString(obj reconcile.Object, key string) (string, bool) {
	s, ok := obj[key].(reconcile.Scalar)
	if !ok || s.IsNull() {
		return "", false
	}
	str, ok := s.Val.(string)
	return str, ok
}

// FieldDecimal reads a numeric scalar from an object tree.
func FieldDecimal(obj reconcile.Object, key string) (decimal.Decimal, bool) {
	s, ok := obj[key].(reconcile.Scalar)
	if !ok {
		return decimal.Decimal{}, false
	}
	return s.Decimal()
}
