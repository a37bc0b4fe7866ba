/*
audit.go - Audit trail contract

PURPOSE:
  Every pipeline operation records who changed what, tagged success or
  failed, with the DiffEntry list of changed fields. The sink is an
  external collaborator; from the pipeline's perspective writes are
  fire-and-forget and never fail the primary operation.
*/
package orders

import (
	"context"
	"time"

	"github.com/warp/inventory-engine/reconcile"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
)

type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// TargetRef names the record an audit entry is about, e.g.
// {Key: "order_id", Value: "..."}.
type TargetRef struct {
	Key   string
	Value string
}

// AuditEntry summarizes one pipeline operation. Error is set only for
// failed entries; UpdatedFields only when a diff was computed.
type AuditEntry struct {
	ID            string
	UserID        string
	Status        AuditStatus
	Action        ActionType
	Target        *TargetRef
	UpdatedFields []reconcile.DiffEntry
	Error         string
	At            time.Time
}

// Sink persists audit entries. Implementations decide durability; the
// pipeline ignores Record errors.
type Sink interface {
	Record(ctx context.Context, entry AuditEntry) error
}
