/*
Package requisition implements the replenishment request workflow.

STATE MACHINE:

	          ┌──approve──▶ approved (terminal, spawns one InTransit movement)
	pending ──┤
	          └──reject───▶ rejected (terminal)

	pending ──delete (author or admin)──▶ gone

APPROVAL ATOMICITY:
  Approval touches two documents: the requisition (status flip) and a new
  stock movement (the order). With a TxRunner both writes commit together.
  Without one, the status flip is a version-checked update and a failed
  movement write is compensated by reverting the requisition to pending.
  Either way a requisition is never approved without its movement.

  A second approval of the same id is reported as skipped and creates
  nothing. Stores additionally reject a second InTransit movement carrying
  the same source requisition.

BATCHES:
  Approve takes a set of ids and reports per id. One failure never rolls
  back the others.

SEE ALSO:
  - workflow.go: Create, Reject, Approve, Delete, Pending
  - summary.go: order text and dispatch link
  - stock/ledger.go: RecordMovement
*/
package requisition

import (
	"context"
	"time"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/stock"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// Requisition is a staff request to replenish an article.
type Requisition struct {
	ID        string       `json:"id" validate:"required"`
	Article   string       `json:"article" validate:"required"`
	Quantity  int          `json:"quantity" validate:"gt=0"`
	Area      generic.Area `json:"area" validate:"area"`
	Requester string       `json:"requester" validate:"required"`
	At        time.Time    `json:"at"`
	Status    Status       `json:"status" validate:"oneof=pending approved rejected"`

	DecidedBy  string     `json:"decidedBy,omitempty"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
	MovementID string     `json:"movementId,omitempty"`

	Version int `json:"version"`
}

// Filter narrows ListRequisitions. Zero values match everything.
type Filter struct {
	Status    Status
	Areas     generic.AreaSet
	Requester string
}

func (f Filter) Match(r Requisition) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Requester != "" && r.Requester != f.Requester {
		return false
	}
	return f.Areas.Contains(r.Area)
}

// Store persists the requisitions collection.
type Store interface {
	InsertRequisition(ctx context.Context, r Requisition) error
	GetRequisition(ctx context.Context, id string) (Requisition, error)

	// UpdateRequisition replaces the document if its stored version equals
	// r.Version, then stores r.Version+1. Otherwise ErrConcurrentModification.
	UpdateRequisition(ctx context.Context, r Requisition) error

	DeleteRequisition(ctx context.Context, id string) error

	// ListRequisitions returns matches ordered by At, then ID.
	ListRequisitions(ctx context.Context, f Filter) ([]Requisition, error)
}

// TxRunner runs fn with requisition and movement stores bound to one
// transaction. fn's error rolls back every write made through them.
type TxRunner interface {
	Run(ctx context.Context, fn func(reqs Store, movements stock.Store) error) error
}
