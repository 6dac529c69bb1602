package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/backoffice/requisition"
)

// =============================================================================
// REQUISITION HANDLERS
// =============================================================================
//
//   GET    /api/requisitions/pending?area=&supplier=&requester=
//   GET    /api/requisitions/history?area=
//   GET    /api/requisitions/{id}
//   POST   /api/requisitions                 create (requester = caller)
//   POST   /api/requisitions/approve         {ids}, per-id report
//   POST   /api/requisitions/{id}/reject
//   DELETE /api/requisitions/{id}            author or admin, pending only

// ListPendingRequisitions is the approval queue, oldest first.
func (h *Handler) ListPendingRequisitions(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	rs, err := h.Workflow.Pending(r.Context(), requisition.PendingFilter{
		Areas:     areas,
		Supplier:  strings.TrimSpace(q.Get("supplier")),
		Requester: strings.TrimSpace(q.Get("requester")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

// RequisitionHistory lists decided requisitions, newest first.
func (h *Handler) RequisitionHistory(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rs, err := h.Workflow.History(r.Context(), areas)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

func (h *Handler) GetRequisition(w http.ResponseWriter, r *http.Request) {
	req, err := h.Workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req RequisitionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.Workflow.Create(r.Context(), requisition.Draft{
		Article:   req.Article,
		Quantity:  req.Quantity,
		Area:      req.Area,
		Requester: actor.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// ApproveRequisitions approves a batch. The answer is always 200 with one
// entry per distinct id; failures never roll back the approved ones.
func (h *Handler) ApproveRequisitions(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ApproveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res := h.Workflow.Approve(r.Context(), req.IDs, actor)
	if h.Metrics != nil {
		h.Metrics.RecordApprovals(len(res.Approved), len(res.Skipped), len(res.Failed))
	}
	writeJSON(w, http.StatusOK, toApprovalResponse(res))
}

func (h *Handler) RejectRequisition(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Workflow.Reject(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteRequisition(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Workflow.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
