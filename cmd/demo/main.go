/*
main.go - End-to-end walkthrough binary

PURPOSE:
  Exercises the full order pipeline against a real SQLite database:
  receive stock through a purchase order, produce through a batch order,
  sell through a sales order, then print the derived ledger views.
  Useful as a smoke test and as executable documentation.

COMMAND-LINE FLAGS:
  -db         SQLite database path (default: ":memory:")
  -log-level  logrus level: debug, info, warn, error (default: info)

EXAMPLES:
  # Run the walkthrough against a throwaway database
  ./demo

  # Keep the resulting database around for inspection
  ./demo -db=./data/inventory.db -log-level=debug
*/
package main

import (
	"context"
	"flag"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/warp/inventory-engine/orders"
	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", ":memory:", "SQLite database path")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	st, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer st.Close()

	pipeline := orders.NewPipeline(st)
	pipeline.Audit = st
	pipeline.Log = log

	if err := run(context.Background(), pipeline, st, log); err != nil {
		log.WithError(err).Error("walkthrough failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, p *orders.Pipeline, st *sqlite.Store, log *logrus.Logger) error {
	// 1. Receive raw material through a purchase order.
	purchase, err := p.Create(ctx, orders.KindPurchase, orders.UpdateRequest{
		Fields: reconcile.Object{"supplier": reconcile.String("acme-malts")},
		LineItems: []reconcile.Object{
			{
				orders.FieldInventoryID: reconcile.String("malt"),
				orders.FieldQuantity:    reconcile.Dec("100"),
				orders.FieldUnitCost:    reconcile.Dec("2.00"),
			},
		},
	}, "demo")
	if err != nil {
		return err
	}

	req := requestFrom(purchase)
	req.Fields[orders.FieldStatus] = reconcile.String(string(orders.StatusCompleted))
	if _, err := p.Update(ctx, orders.KindPurchase, purchase.ID, req, "demo"); err != nil {
		return err
	}
	log.WithField("order", purchase.Code()).Info("purchase completed, stock received")

	maltLots, err := st.LotHistory(ctx, "malt")
	if err != nil {
		return err
	}

	// 2. Produce finished goods, consuming the malt lot.
	batch, err := p.Create(ctx, orders.KindBatch, orders.UpdateRequest{
		Fields: reconcile.Object{orders.FieldInventoryID: reconcile.String("pale-ale")},
		LineItems: []reconcile.Object{
			{
				orders.FieldInventoryID: reconcile.String("malt"),
				orders.FieldQuantity:    reconcile.Dec("60"),
				orders.ConsumptionsKey: reconcile.Array{
					reconcile.Object{
						orders.FieldLotID:    reconcile.String(maltLots[0].Lot.LotID),
						orders.FieldQuantity: reconcile.Dec("60"),
					},
				},
			},
		},
	}, "demo")
	if err != nil {
		return err
	}

	req = requestFrom(batch)
	req.Fields[orders.FieldStatus] = reconcile.String(string(orders.StatusInProgress))
	started, err := p.Update(ctx, orders.KindBatch, batch.ID, req, "demo")
	if err != nil {
		return err
	}

	req = requestFrom(started)
	req.Fields[orders.FieldStatus] = reconcile.String(string(orders.StatusCompleted))
	req.Fields[orders.FieldActualQty] = reconcile.Dec("480")
	req.Fields[orders.FieldActualCost] = reconcile.Dec("0.45")
	if _, err := p.Update(ctx, orders.KindBatch, batch.ID, req, "demo"); err != nil {
		return err
	}
	log.WithField("order", batch.Code()).Info("batch completed, production booked")

	// 3. Print the derived views.
	for _, item := range []string{"malt", "pale-ale"} {
		summary, err := st.ItemSummary(ctx, item)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"item":           item,
			"total_in":       summary.TotalQuantityIn,
			"total_out":      summary.TotalQuantityOut,
			"remaining":      summary.Remaining.RemainingQuantity,
			"remaining_cost": summary.Remaining.RemainingCost,
		}).Info("inventory position")
	}
	return nil
}

func requestFrom(o *orders.Order) orders.UpdateRequest {
	req := orders.UpdateRequest{Fields: o.Fields.CloneObject()}
	req.LineItems = make([]reconcile.Object, len(o.LineItems))
	for i, li := range o.LineItems {
		req.LineItems[i] = li.CloneObject()
	}
	return req
}
