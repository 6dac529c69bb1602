package requisition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/stock"
)

// errAlreadyApproved marks an id that is skipped rather than failed.
var errAlreadyApproved = errors.New("already approved")

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	store  Store
	ledger *stock.Ledger
	tx     TxRunner

	// Dispatcher receives the order summary after a batch with at least one
	// approval. Nil disables dispatch.
	Dispatcher Dispatcher

	Log zerolog.Logger
	Now func() time.Time
}

func NewWorkflow(store Store, ledger *stock.Ledger) *Workflow {
	return &Workflow{
		store:  store,
		ledger: ledger,
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

// WithTxRunner enables atomic approval. Nil falls back to the
// version-checked path.
func (w *Workflow) WithTxRunner(tx TxRunner) *Workflow {
	w.tx = tx
	return w
}

// Atomic reports whether approvals commit status and movement together.
func (w *Workflow) Atomic() bool { return w.tx != nil }

// Draft is the input to Create.
type Draft struct {
	Article   string
	Quantity  int
	Area      generic.Area
	Requester string
}

// Create stores a new pending requisition. An empty Area is taken from the
// article.
func (w *Workflow) Create(ctx context.Context, d Draft) (string, error) {
	if d.Quantity <= 0 {
		return "", fmt.Errorf("%w: %d", generic.ErrInvalidQuantity, d.Quantity)
	}
	r := Requisition{
		ID:        uuid.New().String(),
		Article:   strings.TrimSpace(d.Article),
		Quantity:  d.Quantity,
		Area:      d.Area,
		Requester: d.Requester,
		At:        w.Now(),
		Status:    StatusPending,
		Version:   1,
	}
	if r.Area == "" && r.Article != "" {
		if a, err := w.ledger.Article(ctx, r.Article); err == nil {
			r.Area = a.Area
		}
	}
	if err := generic.Validate(r); err != nil {
		return "", err
	}
	if err := w.store.InsertRequisition(ctx, r); err != nil {
		return "", fmt.Errorf("creating requisition: %w", err)
	}
	w.Log.Info().
		Str("requisition_id", r.ID).
		Str("article", r.Article).
		Int("quantity", r.Quantity).
		Str("requester", r.Requester).
		Msg("requisition created")
	return r.ID, nil
}

func (w *Workflow) Get(ctx context.Context, id string) (Requisition, error) {
	return w.store.GetRequisition(ctx, id)
}

// Reject moves a pending requisition to rejected.
func (w *Workflow) Reject(ctx context.Context, id string, actor generic.Actor) error {
	r, err := w.store.GetRequisition(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusPending {
		return &generic.TransitionError{ID: id, From: string(r.Status), Action: "reject"}
	}
	now := w.Now()
	r.Status = StatusRejected
	r.DecidedBy = actor.Name
	r.DecidedAt = &now
	if err := w.store.UpdateRequisition(ctx, r); err != nil {
		if errors.Is(err, generic.ErrConcurrentModification) {
			if cur, gerr := w.store.GetRequisition(ctx, id); gerr == nil && cur.Status != StatusPending {
				return &generic.TransitionError{ID: id, From: string(cur.Status), Action: "reject"}
			}
		}
		return fmt.Errorf("rejecting requisition: %w", err)
	}
	w.Log.Info().Str("requisition_id", id).Str("by", actor.Name).Msg("requisition rejected")
	return nil
}

// Delete removes a pending requisition. Only its author or an admin may.
func (w *Workflow) Delete(ctx context.Context, id string, actor generic.Actor) error {
	r, err := w.store.GetRequisition(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: requisition %s is %s", generic.ErrForbidden, id, r.Status)
	}
	if !actor.IsAdmin() && actor.Name != r.Requester {
		return fmt.Errorf("%w: %s is not the author of requisition %s", generic.ErrForbidden, actor.Name, id)
	}
	if err := w.store.DeleteRequisition(ctx, id); err != nil {
		return fmt.Errorf("deleting requisition: %w", err)
	}
	w.Log.Info().Str("requisition_id", id).Str("by", actor.Name).Msg("requisition deleted")
	return nil
}

// PendingFilter narrows the approval queue.
type PendingFilter struct {
	Areas     generic.AreaSet
	Requester string

	// Supplier matches the article's preferred supplier. Requisitions for
	// articles missing from the catalog never match a supplier.
	Supplier string
}

// Pending lists pending requisitions, oldest first.
func (w *Workflow) Pending(ctx context.Context, f PendingFilter) ([]Requisition, error) {
	rs, err := w.store.ListRequisitions(ctx, Filter{Status: StatusPending, Areas: f.Areas, Requester: f.Requester})
	if err != nil {
		return nil, err
	}
	if f.Supplier == "" {
		return rs, nil
	}

	suppliers := make(map[string]string)
	out := rs[:0]
	for _, r := range rs {
		s, seen := suppliers[r.Article]
		if !seen {
			if a, err := w.ledger.Article(ctx, r.Article); err == nil {
				s = a.Supplier
			} else if !generic.IsNotFound(err) {
				return nil, err
			}
			suppliers[r.Article] = s
		}
		if s == f.Supplier {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

type Approval struct {
	RequisitionID string `json:"requisitionId"`
	MovementID    string `json:"movementId"`
}

type Failure struct {
	RequisitionID string `json:"requisitionId"`
	Err           error  `json:"-"`
}

// ApprovalResult reports every id of a batch exactly once, in one of
// Approved, Skipped (already approved, nothing created) or Failed.
type ApprovalResult struct {
	Approved []Approval   `json:"approved"`
	Skipped  []string     `json:"skipped"`
	Failed   []Failure    `json:"failed"`
	Summary  OrderSummary `json:"summary"`

	// Dispatch is the dispatcher's reference. DispatchErr never undoes an
	// approval.
	Dispatch    string `json:"dispatch,omitempty"`
	DispatchErr error  `json:"-"`
}

// MovementIDs returns the ids of the created InTransit movements.
func (r ApprovalResult) MovementIDs() []string {
	ids := make([]string, len(r.Approved))
	for i, a := range r.Approved {
		ids[i] = a.MovementID
	}
	return ids
}

func (r ApprovalResult) Partial() bool { return len(r.Failed) > 0 }

// Approve approves every pending id independently. Duplicate ids in the
// input are processed once.
func (w *Workflow) Approve(ctx context.Context, ids []string, actor generic.Actor) ApprovalResult {
	var result ApprovalResult
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, Failure{RequisitionID: id, Err: err})
			continue
		}

		var (
			r     Requisition
			movID string
			err   error
		)
		if w.tx != nil {
			r, movID, err = w.approveAtomic(ctx, id, actor)
		} else {
			r, movID, err = w.approveCompensating(ctx, id, actor)
		}

		switch {
		case errors.Is(err, errAlreadyApproved):
			result.Skipped = append(result.Skipped, id)
		case err != nil:
			w.Log.Warn().Err(err).Str("requisition_id", id).Msg("approval failed")
			result.Failed = append(result.Failed, Failure{RequisitionID: id, Err: err})
		default:
			w.Log.Info().Str("requisition_id", id).Str("movement_id", movID).Str("by", actor.Name).Msg("requisition approved")
			result.Approved = append(result.Approved, Approval{RequisitionID: id, MovementID: movID})
			result.Summary.add(w.orderLine(ctx, r))
		}
	}

	if w.Dispatcher != nil && !result.Summary.Empty() {
		ref, err := w.Dispatcher.Dispatch(ctx, result.Summary)
		if err != nil {
			w.Log.Error().Err(err).Int("approved", len(result.Approved)).Msg("order dispatch failed")
			result.DispatchErr = err
		}
		result.Dispatch = ref
	}
	return result
}

func (w *Workflow) checkApprovable(r Requisition) error {
	switch r.Status {
	case StatusPending:
		return nil
	case StatusApproved:
		return errAlreadyApproved
	default:
		return &generic.TransitionError{ID: r.ID, From: string(r.Status), Action: "approve"}
	}
}

func (w *Workflow) order(r Requisition, at time.Time) stock.Movement {
	return stock.Movement{
		Article:           r.Article,
		Quantity:          r.Quantity,
		Type:              stock.InTransit,
		Area:              r.Area,
		At:                at,
		SourceRequisition: r.ID,
	}
}

// approveAtomic commits the status flip and the order in one transaction.
func (w *Workflow) approveAtomic(ctx context.Context, id string, actor generic.Actor) (Requisition, string, error) {
	var (
		approved Requisition
		movID    string
	)
	err := w.tx.Run(ctx, func(reqs Store, movements stock.Store) error {
		r, err := reqs.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if err := w.checkApprovable(r); err != nil {
			return err
		}

		now := w.Now()
		movID, err = w.ledger.WithStore(movements).RecordMovement(ctx, w.order(r, now))
		if err != nil {
			return err
		}

		r.Status = StatusApproved
		r.DecidedBy = actor.Name
		r.DecidedAt = &now
		r.MovementID = movID
		if err := reqs.UpdateRequisition(ctx, r); err != nil {
			return err
		}
		approved = r
		return nil
	})
	if err != nil {
		return Requisition{}, "", err
	}
	return approved, movID, nil
}

// approveCompensating flips the status with a version check, then records
// the order. A failed order write reverts the requisition to pending.
func (w *Workflow) approveCompensating(ctx context.Context, id string, actor generic.Actor) (Requisition, string, error) {
	r, err := w.store.GetRequisition(ctx, id)
	if err != nil {
		return Requisition{}, "", err
	}
	if err := w.checkApprovable(r); err != nil {
		return Requisition{}, "", err
	}

	now := w.Now()
	flipped := r
	flipped.Status = StatusApproved
	flipped.DecidedBy = actor.Name
	flipped.DecidedAt = &now
	if err := w.store.UpdateRequisition(ctx, flipped); err != nil {
		if errors.Is(err, generic.ErrConcurrentModification) {
			// Lost the race: report what the winner did.
			if cur, gerr := w.store.GetRequisition(ctx, id); gerr == nil {
				if cerr := w.checkApprovable(cur); cerr != nil {
					return Requisition{}, "", cerr
				}
			}
		}
		return Requisition{}, "", err
	}
	flipped.Version++

	movID, err := w.ledger.RecordMovement(ctx, w.order(r, now))
	if err != nil {
		revert := flipped
		revert.Status = StatusPending
		revert.DecidedBy = ""
		revert.DecidedAt = nil
		if rerr := w.store.UpdateRequisition(ctx, revert); rerr != nil {
			w.Log.Error().Err(rerr).Str("requisition_id", id).Msg("approval revert failed: requisition approved without order")
			return Requisition{}, "", fmt.Errorf("recording order: %w (revert failed: %v)", err, rerr)
		}
		return Requisition{}, "", fmt.Errorf("recording order: %w", err)
	}

	flipped.MovementID = movID
	if err := w.store.UpdateRequisition(ctx, flipped); err != nil {
		// The movement already carries the requisition id.
		w.Log.Warn().Err(err).Str("requisition_id", id).Str("movement_id", movID).Msg("could not link movement on requisition")
	} else {
		flipped.Version++
	}
	return flipped, movID, nil
}

func (w *Workflow) orderLine(ctx context.Context, r Requisition) OrderLine {
	line := OrderLine{Article: r.Article, Quantity: r.Quantity}
	if a, err := w.ledger.Article(ctx, r.Article); err == nil {
		line.Unit = a.Unit
		line.UnitPrice = a.UnitPrice
	}
	return line
}

// History lists decided requisitions (approved and rejected), newest first.
func (w *Workflow) History(ctx context.Context, areas generic.AreaSet) ([]Requisition, error) {
	rs, err := w.store.ListRequisitions(ctx, Filter{Areas: areas})
	if err != nil {
		return nil, err
	}
	out := rs[:0]
	for _, r := range rs {
		if r.Status.Terminal() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}
