package stockledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/stockledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func lot(id string, seq int64, qty, cost string) stockledger.Lot {
	return stockledger.Lot{
		LotID:       id,
		InventoryID: "item-1",
		Sequence:    seq,
		QuantityIn:  dec(qty),
		UnitCost:    dec(cost),
	}
}

func consumed(lotID, qty string) stockledger.Consumption {
	return stockledger.Consumption{LotID: lotID, QuantityOut: dec(qty)}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertDec(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// =============================================================================
// REMAINING BALANCE
// =============================================================================

func TestRemainingForItem_CostFollowsTheConsumedLot(t *testing.T) {
	// GIVEN: Two lots at different unit costs, 4 units consumed from the
	//        first (cheaper) lot
	// WHEN: The remaining balance is derived
	// THEN: quantity = 10 + 5 - 4 = 11
	//       cost = 10*2.00 + 5*3.00 - 4*2.00 = 27.00 - the consumption is
	//       costed at its own lot's price, not a blended average

	lots := []stockledger.Lot{
		lot("L1", 1, "10", "2.00"),
		lot("L2", 2, "5", "3.00"),
	}
	consumptions := []stockledger.Consumption{consumed("L1", "4")}

	balance := stockledger.RemainingForItem(lots, consumptions)

	assertDec(t, "11", balance.RemainingQuantity)
	assertDec(t, "27", balance.RemainingCost)
}

func TestRemainingForItem_NoConsumptions_FullyRemaining(t *testing.T) {
	lots := []stockledger.Lot{lot("L1", 1, "10", "2.50")}

	balance := stockledger.RemainingForItem(lots, nil)

	assertDec(t, "10", balance.RemainingQuantity)
	assertDec(t, "25", balance.RemainingCost)
}

func TestRemainingForItem_EmptyLedger_Zero(t *testing.T) {
	balance := stockledger.RemainingForItem(nil, nil)

	assertDec(t, "0", balance.RemainingQuantity)
	assertDec(t, "0", balance.RemainingCost)
}

func TestRemainingForItem_UnknownLot_ReducesQuantityOnly(t *testing.T) {
	// A consumption referencing a lot this item doesn't have still counts
	// against quantity, but there is no unit cost to attribute.
	lots := []stockledger.Lot{lot("L1", 1, "10", "2.00")}
	consumptions := []stockledger.Consumption{consumed("missing", "3")}

	balance := stockledger.RemainingForItem(lots, consumptions)

	assertDec(t, "7", balance.RemainingQuantity)
	assertDec(t, "20", balance.RemainingCost)
}

func TestRemainingForItem_FractionalQuantitiesStayExact(t *testing.T) {
	lots := []stockledger.Lot{lot("L1", 1, "0.3", "1")}
	consumptions := []stockledger.Consumption{
		consumed("L1", "0.1"),
		consumed("L1", "0.1"),
		consumed("L1", "0.1"),
	}

	balance := stockledger.RemainingForItem(lots, consumptions)

	assert.True(t, balance.RemainingQuantity.IsZero(),
		"0.3 - 3*0.1 must be exactly zero, got %s", balance.RemainingQuantity)
}

// =============================================================================
// DRILL-DOWN HISTORY
// =============================================================================

func TestHistory_HidesFullyConsumedLots(t *testing.T) {
	// GIVEN: Three lots, the middle one fully consumed
	// WHEN: The drill-down view is derived
	// THEN: Only partially consumed and untouched lots appear, oldest first

	lots := []stockledger.Lot{
		lot("L3", 3, "8", "4.00"),
		lot("L1", 1, "10", "2.00"),
		lot("L2", 2, "5", "3.00"),
	}
	consumptions := []stockledger.Consumption{
		consumed("L2", "5"),
		consumed("L1", "4"),
	}

	history := stockledger.History(lots, consumptions)

	require.Len(t, history, 2)
	assert.Equal(t, "L1", history[0].Lot.LotID)
	assertDec(t, "6", history[0].RemainingQuantity)
	assertDec(t, "12", history[0].RemainingCost)
	assert.Equal(t, "L3", history[1].Lot.LotID)
	assertDec(t, "8", history[1].RemainingQuantity)
}

func TestHistory_MultipleConsumptionsAccumulate(t *testing.T) {
	lots := []stockledger.Lot{lot("L1", 1, "10", "2.00")}
	consumptions := []stockledger.Consumption{
		consumed("L1", "3"),
		consumed("L1", "2"),
	}

	history := stockledger.History(lots, consumptions)

	require.Len(t, history, 1)
	assertDec(t, "5", history[0].RemainingQuantity)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize_Conservation(t *testing.T) {
	// Totals in minus totals out must equal the remaining balance, and the
	// remaining balance must agree with RemainingForItem.

	lots := []stockledger.Lot{
		lot("L1", 1, "10", "2.00"),
		lot("L2", 2, "5", "3.00"),
	}
	consumptions := []stockledger.Consumption{
		consumed("L1", "4"),
		consumed("L2", "1.5"),
	}

	summary := stockledger.Summarize(lots, consumptions)

	assertDec(t, "15", summary.TotalQuantityIn)
	assertDec(t, "35", summary.TotalCostIn)
	assertDec(t, "5.5", summary.TotalQuantityOut)
	assertDec(t, "12.5", summary.TotalCostOut)

	assert.True(t, summary.Remaining.RemainingQuantity.Equal(
		summary.TotalQuantityIn.Sub(summary.TotalQuantityOut)))
	assert.True(t, summary.Remaining.RemainingCost.Equal(
		summary.TotalCostIn.Sub(summary.TotalCostOut)))

	direct := stockledger.RemainingForItem(lots, consumptions)
	assert.True(t, summary.Remaining.RemainingQuantity.Equal(direct.RemainingQuantity))
	assert.True(t, summary.Remaining.RemainingCost.Equal(direct.RemainingCost))
}
