/*
aggregate.go - Derived balances from ledger rows

PURPOSE:
  Pure aggregation over lots and consumptions for one inventory item.
  The SQLite store selects and joins rows in SQL and delegates the
  arithmetic here, so there is exactly one place where balances are
  computed.

INVARIANTS:
  - remainingQuantity = sum(quantityIn) - sum(quantityOut)
  - remainingCost attributes each consumption to its own lot's unit cost
  - a lot with zero consumptions is fully remaining (missing sums are
    zero, never null-propagating)
  - drill-down hides fully consumed lots and orders by sequence ascending
    (oldest first, FIFO-style visibility into what remains)
*/
package stockledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE AGGREGATION
// =============================================================================

// RemainingForItem derives the remaining balance from one item's lots and
// consumptions. Consumptions referencing an unknown lot still reduce
// quantity but cannot be costed and contribute zero cost.
func RemainingForItem(lots []Lot, consumptions []Consumption) Balance {
	costByLot := make(map[string]decimal.Decimal, len(lots))

	var quantity, cost decimal.Decimal
	for _, lot := range lots {
		quantity = quantity.Add(lot.QuantityIn)
		cost = cost.Add(lot.QuantityIn.Mul(lot.UnitCost))
		costByLot[lot.LotID] = lot.UnitCost
	}

	for _, c := range consumptions {
		quantity = quantity.Sub(c.QuantityOut)
		if unitCost, ok := costByLot[c.LotID]; ok {
			cost = cost.Sub(c.QuantityOut.Mul(unitCost))
		}
	}

	return Balance{RemainingQuantity: quantity, RemainingCost: cost}
}

// History returns the drill-down view: lots that are not fully consumed,
// oldest sequence first, each with its remaining quantity and the cost of
// that remainder at the lot's own unit cost.
func History(lots []Lot, consumptions []Consumption) []LotBalance {
	consumedByLot := make(map[string]decimal.Decimal, len(lots))
	for _, c := range consumptions {
		consumedByLot[c.LotID] = consumedByLot[c.LotID].Add(c.QuantityOut)
	}

	var out []LotBalance
	for _, lot := range lots {
		remaining := lot.QuantityIn.Sub(consumedByLot[lot.LotID])
		if remaining.IsZero() {
			continue
		}
		out = append(out, LotBalance{
			Lot:               lot,
			RemainingQuantity: remaining,
			RemainingCost:     remaining.Mul(lot.UnitCost),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Lot.Sequence < out[j].Lot.Sequence
	})
	return out
}

// Summarize derives the listing totals for one inventory item.
func Summarize(lots []Lot, consumptions []Consumption) ItemSummary {
	costByLot := make(map[string]decimal.Decimal, len(lots))

	var s ItemSummary
	for _, lot := range lots {
		s.TotalQuantityIn = s.TotalQuantityIn.Add(lot.QuantityIn)
		s.TotalCostIn = s.TotalCostIn.Add(lot.QuantityIn.Mul(lot.UnitCost))
		costByLot[lot.LotID] = lot.UnitCost
	}
	for _, c := range consumptions {
		s.TotalQuantityOut = s.TotalQuantityOut.Add(c.QuantityOut)
		if unitCost, ok := costByLot[c.LotID]; ok {
			s.TotalCostOut = s.TotalCostOut.Add(c.QuantityOut.Mul(unitCost))
		}
	}

	s.Remaining = Balance{
		RemainingQuantity: s.TotalQuantityIn.Sub(s.TotalQuantityOut),
		RemainingCost:     s.TotalCostIn.Sub(s.TotalCostOut),
	}
	return s
}
