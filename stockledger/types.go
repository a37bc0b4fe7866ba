/*
Package stockledger models raw-material inventory as an append-only ledger.

PURPOSE:
  Stock levels are never stored as a mutable counter. Inventory receives
  stock as immutable lots (stock-in rows) and depletes it as immutable
  consumptions (stock-out rows) that each reference a specific lot.
  Remaining quantity and cost are always derived by aggregation.

KEY CONCEPTS:
  - Lot:         A batch of inventory received at a specific unit cost
  - Consumption: A recorded depletion against one lot
  - Balance:     Derived remaining quantity and cost, never persisted

COST ATTRIBUTION:
  Cost is attributed to the specific lot a consumption references, not a
  blended average. Depleting 4 units of a 10-unit lot bought at 2.00
  removes exactly 8.00 of cost, regardless of other lots' prices.

APPEND-ONLY CONTRACT:
  Nothing in this package mutates lots or consumptions. New rows are
  appended by the order pipeline; this package only derives views.

SEE ALSO:
  - aggregate.go: Balance and drill-down calculations
  - orders/pipeline.go: Appends ledger rows on order completion
*/
package stockledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ROWS
// =============================================================================

// Lot is a single stock-in row: a batch received at a specific unit cost.
// Sequence is monotonic per inventory item and orders FIFO-style views.
// Immutable once created.
type Lot struct {
	LotID       string
	InventoryID string
	Sequence    int64
	QuantityIn  decimal.Decimal
	UnitCost    decimal.Decimal

	// Where the stock came from: a completed purchase order line item or
	// a completed batch order's production run.
	SourceOrderID string
	SourceItemID  string

	CreatedAt time.Time
}

// Consumption is a single stock-out row depleting one lot. LineItemID
// links it to the order line item that consumed the stock. Immutable once
// created; sufficiency of the lot is validated upstream.
type Consumption struct {
	ConsumptionID string
	LotID         string
	LineItemID    string
	QuantityOut   decimal.Decimal
	CreatedAt     time.Time
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// Balance is the derived remaining position of one inventory item.
type Balance struct {
	RemainingQuantity decimal.Decimal
	RemainingCost     decimal.Decimal
}

// LotBalance is one drill-down row: a lot that still has unconsumed
// quantity, with its remaining quantity and cost at that lot's unit cost.
type LotBalance struct {
	Lot               Lot
	RemainingQuantity decimal.Decimal
	RemainingCost     decimal.Decimal
}

// ItemSummary is the listing view for one inventory item: totals in, out
// and remaining.
type ItemSummary struct {
	TotalQuantityIn  decimal.Decimal
	TotalCostIn      decimal.Decimal
	TotalQuantityOut decimal.Decimal
	TotalCostOut     decimal.Decimal
	Remaining        Balance
}
