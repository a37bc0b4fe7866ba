/*
Package sqlite provides the SQLite-backed orders.Store, the audit sink
and the stock-ledger read queries.

TABLES:
  orders:             One row per order; scalar payload as JSON
  order_items:        Line items, ordered by position, cascade-deleted
  stock_consumptions: Consumption children of line items, with lot_id
                      and quantity extracted into columns for joins
  stock_lots:         Append-only stock-in rows, sequenced per item
  sequences:          Monotonic counters for display codes and lot order
  activity_logs:      The audit trail

LAYOUT:
  Order and line-item payloads are open field trees, so they persist as
  JSON documents. The ledger columns the queries join and filter on
  (lot_id, quantity, inventory_id, seq) are extracted into real columns
  at write time.

AGGREGATION:
  Ledger queries select and join rows in SQL but sum quantities and
  costs in Go with decimal arithmetic. Summing TEXT-stored decimals in
  SQLite would coerce to float and drift.

CONCURRENCY:
  WAL mode plus a write mutex: readers run concurrently, writers
  serialize. Every mutating Store method runs in its own transaction;
  WithTx groups several into one.

USAGE:
  st, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  pipeline := orders.NewPipeline(st)
  pipeline.Audit = st

SEE ALSO:
  - orders/store.go:       Interface definition
  - orders/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/orders"
	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/stockledger"
)

// execer is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx, so the
// same query helpers serve both.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store implements orders.Store, orders.Sink and the ledger queries.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		seq INTEGER NOT NULL,
		fields_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_kind_seq
		ON orders(kind, seq);

	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		fields_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order
		ON order_items(order_id, position);

	CREATE TABLE IF NOT EXISTS stock_consumptions (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES order_items(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		lot_id TEXT,
		quantity TEXT NOT NULL,
		fields_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_consumptions_item
		ON stock_consumptions(item_id, position);
	CREATE INDEX IF NOT EXISTS idx_stock_consumptions_lot
		ON stock_consumptions(lot_id) WHERE lot_id IS NOT NULL;

	-- Append-only: lots are never updated or deleted.
	CREATE TABLE IF NOT EXISTS stock_lots (
		id TEXT PRIMARY KEY,
		inventory_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		quantity_in TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		source_order_id TEXT,
		source_item_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_lots_item_seq
		ON stock_lots(inventory_id, seq);

	CREATE TABLE IF NOT EXISTS sequences (
		scope TEXT PRIMARY KEY,
		last_no INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		status TEXT NOT NULL,
		action TEXT NOT NULL,
		target_key TEXT,
		target_value TEXT,
		updated_fields_json TEXT,
		error TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW TYPES
// =============================================================================

type orderRow struct {
	ID        string `db:"id"`
	Kind      string `db:"kind"`
	Seq       int64  `db:"seq"`
	Fields    string `db:"fields_json"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type itemRow struct {
	ID       string `db:"id"`
	OrderID  string `db:"order_id"`
	Position int64  `db:"position"`
	Fields   string `db:"fields_json"`
}

type consumptionRow struct {
	ID       string         `db:"id"`
	ItemID   string         `db:"item_id"`
	Position int64          `db:"position"`
	LotID    sql.NullString `db:"lot_id"`
	Quantity string         `db:"quantity"`
	Fields   string         `db:"fields_json"`
}

type lotRow struct {
	ID            string         `db:"id"`
	InventoryID   string         `db:"inventory_id"`
	Seq           int64          `db:"seq"`
	QuantityIn    string         `db:"quantity_in"`
	UnitCost      string         `db:"unit_cost"`
	SourceOrderID sql.NullString `db:"source_order_id"`
	SourceItemID  sql.NullString `db:"source_item_id"`
	CreatedAt     string         `db:"created_at"`
}

// =============================================================================
// orders.Store
// =============================================================================

func (s *Store) GetOrder(ctx context.Context, kind orders.Kind, orderID string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOrder(ctx, s.db, kind, orderID)
}

func (s *Store) CreateOrder(ctx context.Context, order *orders.Order) error {
	return s.WithTx(ctx, func(ts orders.Store) error {
		return ts.CreateOrder(ctx, order)
	})
}

func (s *Store) UpdateOrder(ctx context.Context, kind orders.Kind, orderID string, patch reconcile.Object, items reconcile.Result) (*orders.Order, error) {
	var updated *orders.Order
	err := s.WithTx(ctx, func(ts orders.Store) error {
		var err error
		updated, err = ts.UpdateOrder(ctx, kind, orderID, patch, items)
		return err
	})
	return updated, err
}

func (s *Store) DeleteOrder(ctx context.Context, kind orders.Kind, orderID string) error {
	return s.WithTx(ctx, func(ts orders.Store) error {
		return ts.DeleteOrder(ctx, kind, orderID)
	})
}

func (s *Store) AppendLots(ctx context.Context, lots []stockledger.Lot) error {
	return s.WithTx(ctx, func(ts orders.Store) error {
		return ts.AppendLots(ctx, lots)
	})
}

// WithTx runs fn in one database transaction. fn returning an error
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(orders.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txStore is the transactional view handed to WithTx functions.
type txStore struct {
	tx *sqlx.Tx
}

func (t *txStore) GetOrder(ctx context.Context, kind orders.Kind, orderID string) (*orders.Order, error) {
	return getOrder(ctx, t.tx, kind, orderID)
}

func (t *txStore) CreateOrder(ctx context.Context, order *orders.Order) error {
	now := time.Now().UTC()
	seq, err := nextSeq(ctx, t.tx, "order:"+string(order.Kind))
	if err != nil {
		return err
	}

	order.ID = uuid.NewString()
	order.Seq = seq
	order.CreatedAt = now
	order.UpdatedAt = now

	fieldsJSON, err := json.Marshal(order.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode order fields: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, kind, seq, fields_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, string(order.Kind), order.Seq, string(fieldsJSON),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, li := range order.LineItems {
		itemID, err := insertItem(ctx, t.tx, order.ID, int64(i), li)
		if err != nil {
			return err
		}
		li[orders.LineItemIdentity] = reconcile.String(itemID)
	}
	return nil
}

func (t *txStore) UpdateOrder(ctx context.Context, kind orders.Kind, orderID string, patch reconcile.Object, items reconcile.Result) (*orders.Order, error) {
	var row orderRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT * FROM orders WHERE id = ? AND kind = ?`, orderID, string(kind))
	if err == sql.ErrNoRows {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	fields, err := reconcile.DecodeObject([]byte(row.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to decode order fields: %w", err)
	}
	fields = reconcile.ApplyPatch(fields, patch)

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order fields: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE orders SET fields_json = ?, updated_at = ? WHERE id = ?`,
		string(fieldsJSON), time.Now().UTC().Format(time.RFC3339Nano), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := applyItems(ctx, t.tx, orderID, items); err != nil {
		return nil, err
	}

	return getOrder(ctx, t.tx, kind, orderID)
}

func (t *txStore) DeleteOrder(ctx context.Context, kind orders.Kind, orderID string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM orders WHERE id = ? AND kind = ?`, orderID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *txStore) AppendLots(ctx context.Context, lots []stockledger.Lot) error {
	for i := range lots {
		lot := &lots[i]
		seq, err := nextSeq(ctx, t.tx, "lot:"+lot.InventoryID)
		if err != nil {
			return err
		}
		lot.LotID = uuid.NewString()
		lot.Sequence = seq
		if lot.CreatedAt.IsZero() {
			lot.CreatedAt = time.Now().UTC()
		}

		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO stock_lots
				(id, inventory_id, seq, quantity_in, unit_cost, source_order_id, source_item_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			lot.LotID, lot.InventoryID, lot.Sequence,
			lot.QuantityIn.String(), lot.UnitCost.String(),
			nullable(lot.SourceOrderID), nullable(lot.SourceItemID),
			lot.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert stock lot: %w", err)
		}
	}
	return nil
}

// WithTx on a transactional view joins the surrounding transaction.
func (t *txStore) WithTx(ctx context.Context, fn func(orders.Store) error) error {
	return fn(t)
}

// =============================================================================
// ORDER LOADING
// =============================================================================

func getOrder(ctx context.Context, q execer, kind orders.Kind, orderID string) (*orders.Order, error) {
	var row orderRow
	err := q.GetContext(ctx, &row,
		`SELECT * FROM orders WHERE id = ? AND kind = ?`, orderID, string(kind))
	if err == sql.ErrNoRows {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	fields, err := reconcile.DecodeObject([]byte(row.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to decode order fields: %w", err)
	}

	var itemRows []itemRow
	err = q.SelectContext(ctx, &itemRows,
		`SELECT * FROM order_items WHERE order_id = ? ORDER BY position ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}

	lineItems := make([]reconcile.Object, 0, len(itemRows))
	for _, ir := range itemRows {
		li, err := reconcile.DecodeObject([]byte(ir.Fields))
		if err != nil {
			return nil, fmt.Errorf("failed to decode line item: %w", err)
		}
		li[orders.LineItemIdentity] = reconcile.String(ir.ID)

		var childRows []consumptionRow
		err = q.SelectContext(ctx, &childRows,
			`SELECT * FROM stock_consumptions WHERE item_id = ? ORDER BY position ASC`, ir.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load consumptions: %w", err)
		}
		if len(childRows) > 0 {
			children := make(reconcile.Array, len(childRows))
			for i, cr := range childRows {
				child, err := reconcile.DecodeObject([]byte(cr.Fields))
				if err != nil {
					return nil, fmt.Errorf("failed to decode consumption: %w", err)
				}
				child[orders.ConsumptionIdent] = reconcile.String(cr.ID)
				children[i] = child
			}
			li[orders.ConsumptionsKey] = children
		}

		lineItems = append(lineItems, li)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, row.UpdatedAt)

	return &orders.Order{
		ID:        row.ID,
		Kind:      orders.Kind(row.Kind),
		Seq:       row.Seq,
		Fields:    fields,
		LineItems: lineItems,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// =============================================================================
// COLLECTION INSTRUCTIONS
// =============================================================================

// applyItems executes a line-item reconciliation result: deletes first,
// then in-place patches, then appends.
func applyItems(ctx context.Context, q execer, orderID string, items reconcile.Result) error {
	for _, id := range items.DeleteIDs {
		_, err := q.ExecContext(ctx,
			`DELETE FROM order_items WHERE id = ? AND order_id = ?`, id, orderID)
		if err != nil {
			return fmt.Errorf("failed to delete line item: %w", err)
		}
	}

	for _, upd := range items.Update {
		var ir itemRow
		err := q.GetContext(ctx, &ir,
			`SELECT * FROM order_items WHERE id = ? AND order_id = ?`, upd.Identity, orderID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load line item: %w", err)
		}

		if len(upd.Patch) > 0 {
			fields, err := reconcile.DecodeObject([]byte(ir.Fields))
			if err != nil {
				return fmt.Errorf("failed to decode line item: %w", err)
			}
			fields = reconcile.ApplyPatch(fields, upd.Patch)
			fieldsJSON, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("failed to encode line item: %w", err)
			}
			_, err = q.ExecContext(ctx,
				`UPDATE order_items SET fields_json = ? WHERE id = ?`, string(fieldsJSON), ir.ID)
			if err != nil {
				return fmt.Errorf("failed to update line item: %w", err)
			}
		}

		if sub, ok := upd.Nested[orders.ConsumptionsKey]; ok {
			if err := applyConsumptions(ctx, q, ir.ID, sub); err != nil {
				return err
			}
		}
	}

	for _, create := range items.Create {
		var pos sql.NullInt64
		err := q.GetContext(ctx, &pos,
			`SELECT MAX(position) FROM order_items WHERE order_id = ?`, orderID)
		if err != nil {
			return fmt.Errorf("failed to read item positions: %w", err)
		}

		li := create.Fields.CloneObject()
		itemID, err := insertItemFields(ctx, q, orderID, pos.Int64+1, li)
		if err != nil {
			return err
		}
		if sub, ok := create.Nested[orders.ConsumptionsKey]; ok {
			if err := applyConsumptions(ctx, q, itemID, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyConsumptions(ctx context.Context, q execer, itemID string, res reconcile.Result) error {
	for _, id := range res.DeleteIDs {
		_, err := q.ExecContext(ctx,
			`DELETE FROM stock_consumptions WHERE id = ? AND item_id = ?`, id, itemID)
		if err != nil {
			return fmt.Errorf("failed to delete consumption: %w", err)
		}
	}

	for _, upd := range res.Update {
		if len(upd.Patch) == 0 {
			continue
		}
		var cr consumptionRow
		err := q.GetContext(ctx, &cr,
			`SELECT * FROM stock_consumptions WHERE id = ? AND item_id = ?`, upd.Identity, itemID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load consumption: %w", err)
		}

		fields, err := reconcile.DecodeObject([]byte(cr.Fields))
		if err != nil {
			return fmt.Errorf("failed to decode consumption: %w", err)
		}
		fields = reconcile.ApplyPatch(fields, upd.Patch)
		if err := updateConsumptionRow(ctx, q, cr.ID, fields); err != nil {
			return err
		}
	}

	for _, create := range res.Create {
		var pos sql.NullInt64
		err := q.GetContext(ctx, &pos,
			`SELECT MAX(position) FROM stock_consumptions WHERE item_id = ?`, itemID)
		if err != nil {
			return fmt.Errorf("failed to read consumption positions: %w", err)
		}
		if err := insertConsumption(ctx, q, itemID, pos.Int64+1, create.Fields.CloneObject()); err != nil {
			return err
		}
	}
	return nil
}

// insertItem persists a full line-item tree: the consumption children
// are split out of the object into their own rows.
func insertItem(ctx context.Context, q execer, orderID string, position int64, li reconcile.Object) (string, error) {
	fields := li.CloneObject()
	delete(fields, orders.LineItemIdentity)

	var children []reconcile.Object
	if arr, ok := fields[orders.ConsumptionsKey].(reconcile.Array); ok {
		for _, v := range arr {
			if child, ok := v.(reconcile.Object); ok {
				children = append(children, child)
			}
		}
		delete(fields, orders.ConsumptionsKey)
	}

	itemID, err := insertItemFields(ctx, q, orderID, position, fields)
	if err != nil {
		return "", err
	}
	for i, child := range children {
		c := child.CloneObject()
		delete(c, orders.ConsumptionIdent)
		if err := insertConsumption(ctx, q, itemID, int64(i), c); err != nil {
			return "", err
		}
	}
	return itemID, nil
}

func insertItemFields(ctx context.Context, q execer, orderID string, position int64, fields reconcile.Object) (string, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode line item: %w", err)
	}
	itemID := uuid.NewString()
	_, err = q.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, position, fields_json)
		VALUES (?, ?, ?, ?)`,
		itemID, orderID, position, string(fieldsJSON))
	if err != nil {
		return "", fmt.Errorf("failed to insert line item: %w", err)
	}
	return itemID, nil
}

func insertConsumption(ctx context.Context, q execer, itemID string, position int64, fields reconcile.Object) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode consumption: %w", err)
	}
	lotID, _ := orders.FieldString(fields, orders.FieldLotID)
	qty, _ := orders.FieldDecimal(fields, orders.FieldQuantity)

	_, err = q.ExecContext(ctx, `
		INSERT INTO stock_consumptions (id, item_id, position, lot_id, quantity, fields_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), itemID, position, nullable(lotID), qty.String(), string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("failed to insert consumption: %w", err)
	}
	return nil
}

func updateConsumptionRow(ctx context.Context, q execer, id string, fields reconcile.Object) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode consumption: %w", err)
	}
	lotID, _ := orders.FieldString(fields, orders.FieldLotID)
	qty, _ := orders.FieldDecimal(fields, orders.FieldQuantity)

	_, err = q.ExecContext(ctx, `
		UPDATE stock_consumptions SET lot_id = ?, quantity = ?, fields_json = ?
		WHERE id = ?`,
		nullable(lotID), qty.String(), string(fieldsJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update consumption: %w", err)
	}
	return nil
}

// =============================================================================
// SEQUENCES
// =============================================================================

// nextSeq increments and returns the counter for one scope, creating it
// on first use. Runs inside the caller's transaction.
func nextSeq(ctx context.Context, q execer, scope string) (int64, error) {
	var lastNo int64
	err := q.GetContext(ctx, &lastNo,
		`SELECT last_no FROM sequences WHERE scope = ?`, scope)
	if err == sql.ErrNoRows {
		_, err = q.ExecContext(ctx,
			`INSERT INTO sequences (scope, last_no) VALUES (?, 1)`, scope)
		if err != nil {
			return 0, fmt.Errorf("failed to create sequence %q: %w", scope, err)
		}
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %q: %w", scope, err)
	}

	newNo := lastNo + 1
	_, err = q.ExecContext(ctx,
		`UPDATE sequences SET last_no = ? WHERE scope = ?`, newNo, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to update sequence %q: %w", scope, err)
	}
	return newNo, nil
}

// =============================================================================
// orders.Sink
// =============================================================================

func (s *Store) Record(ctx context.Context, entry orders.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var targetKey, targetValue interface{}
	if entry.Target != nil {
		targetKey = entry.Target.Key
		targetValue = entry.Target.Value
	}
	var fieldsJSON interface{}
	if len(entry.UpdatedFields) > 0 {
		data, err := json.Marshal(entry.UpdatedFields)
		if err != nil {
			return fmt.Errorf("failed to encode audit fields: %w", err)
		}
		fieldsJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs
			(id, user_id, status, action, target_key, target_value, updated_fields_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullable(entry.UserID), string(entry.Status), string(entry.Action),
		targetKey, targetValue, fieldsJSON, nullable(entry.Error),
		entry.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// RemainingForItem returns the remaining quantity and cost of one
// inventory item across all its lots.
func (s *Store) RemainingForItem(ctx context.Context, inventoryID string) (stockledger.Balance, error) {
	lots, consumptions, err := s.ledgerRows(ctx, inventoryID)
	if err != nil {
		return stockledger.Balance{}, err
	}
	return stockledger.RemainingForItem(lots, consumptions), nil
}

// LotHistory returns the not-fully-consumed lots of one inventory item
// in acquisition order, with their remaining balances.
func (s *Store) LotHistory(ctx context.Context, inventoryID string) ([]stockledger.LotBalance, error) {
	lots, consumptions, err := s.ledgerRows(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	return stockledger.History(lots, consumptions), nil
}

// ItemSummary returns total in, total out and remainder for one
// inventory item.
func (s *Store) ItemSummary(ctx context.Context, inventoryID string) (stockledger.ItemSummary, error) {
	lots, consumptions, err := s.ledgerRows(ctx, inventoryID)
	if err != nil {
		return stockledger.ItemSummary{}, err
	}
	return stockledger.Summarize(lots, consumptions), nil
}

// ledgerRows selects one item's lots in sequence order plus every
// consumption attributable to them through its lot reference.
func (s *Store) ledgerRows(ctx context.Context, inventoryID string) ([]stockledger.Lot, []stockledger.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lotRows []lotRow
	err := s.db.SelectContext(ctx, &lotRows,
		`SELECT * FROM stock_lots WHERE inventory_id = ? ORDER BY seq ASC`, inventoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load stock lots: %w", err)
	}

	lots := make([]stockledger.Lot, 0, len(lotRows))
	for _, lr := range lotRows {
		lot, err := lr.toLot()
		if err != nil {
			return nil, nil, err
		}
		lots = append(lots, lot)
	}

	var conRows []consumptionRow
	err = s.db.SelectContext(ctx, &conRows, `
		SELECT c.* FROM stock_consumptions c
		JOIN stock_lots l ON l.id = c.lot_id
		WHERE l.inventory_id = ?
		ORDER BY c.rowid ASC`, inventoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load consumptions: %w", err)
	}

	consumptions := make([]stockledger.Consumption, 0, len(conRows))
	for _, cr := range conRows {
		qty, err := decimal.NewFromString(cr.Quantity)
		if err != nil {
			return nil, nil, fmt.Errorf("corrupt consumption quantity %q: %w", cr.Quantity, err)
		}
		consumptions = append(consumptions, stockledger.Consumption{
			ConsumptionID: cr.ID,
			LotID:         cr.LotID.String,
			LineItemID:    cr.ItemID,
			QuantityOut:   qty,
		})
	}

	return lots, consumptions, nil
}

func (r lotRow) toLot() (stockledger.Lot, error) {
	qty, err := decimal.NewFromString(r.QuantityIn)
	if err != nil {
		return stockledger.Lot{}, fmt.Errorf("corrupt lot quantity %q: %w", r.QuantityIn, err)
	}
	cost, err := decimal.NewFromString(r.UnitCost)
	if err != nil {
		return stockledger.Lot{}, fmt.Errorf("corrupt lot cost %q: %w", r.UnitCost, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return stockledger.Lot{
		LotID:         r.ID,
		InventoryID:   r.InventoryID,
		Sequence:      r.Seq,
		QuantityIn:    qty,
		UnitCost:      cost,
		SourceOrderID: r.SourceOrderID.String,
		SourceItemID:  r.SourceItemID.String,
		CreatedAt:     createdAt,
	}, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
