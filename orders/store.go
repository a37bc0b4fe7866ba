/*
store.go - Persistence interface for orders and ledger rows

PURPOSE:
  Defines the contract between the pipeline and the database. The store
  handle is passed explicitly into every pipeline call; there is no
  process-wide client.

ATOMICITY:
  WithTx executes a function against a transactional view of the store.
  All nested creates, updates, deletes and appended ledger rows inside
  one call commit together or not at all, at read-committed isolation or
  better. Conflicting concurrent updates to the same order are not
  detected (no optimistic version check); callers serialize per order.

IMPLEMENTATIONS:
  - orders/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: Production SQLite
*/
package orders

import (
	"context"

	"github.com/warp/inventory-engine/reconcile"
	"github.com/warp/inventory-engine/stockledger"
)

// Store persists orders, their nested line items and consumption
// children, and appended stock lots.
type Store interface {
	// GetOrder returns one order with its nested line items and their
	// consumption children. Returns ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, kind Kind, orderID string) (*Order, error)

	// CreateOrder persists a new order tree. The store assigns the order
	// ID, the per-kind display sequence, and identities for all nested
	// children, writing them back into the passed order.
	CreateOrder(ctx context.Context, order *Order) error

	// UpdateOrder applies a sparse scalar patch plus line-item
	// instructions and returns the resulting order with server-assigned
	// identities on any created children.
	UpdateOrder(ctx context.Context, kind Kind, orderID string, patch reconcile.Object, items reconcile.Result) (*Order, error)

	// DeleteOrder removes an order and its nested children.
	DeleteOrder(ctx context.Context, kind Kind, orderID string) error

	// AppendLots appends stock-in rows. The store assigns lot IDs and
	// per-item monotonic sequences.
	AppendLots(ctx context.Context, lots []stockledger.Lot) error

	// WithTx executes fn against a transactional store view. If fn
	// returns an error the transaction rolls back and nothing persists.
	WithTx(ctx context.Context, fn func(Store) error) error
}
