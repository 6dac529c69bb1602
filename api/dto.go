/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the stored documents from the external API contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers that are not a stored document

VALIDATION:
  Request types carry validator tags; handlers run generic.ValidationFields
  on them before calling a service, and answer 400 with one message per
  field. Domain rules (quantity > 0, state transitions) stay in the
  services so every caller gets the same typed errors.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/validate.go: shared validator and custom tags
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/stock"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// STOCK
// =============================================================================

type ArticleRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Unit        string          `json:"unit" validate:"required"`
	MinStock    int             `json:"minStock" validate:"gte=0"`
	Supplier    string          `json:"supplier"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Area        generic.Area    `json:"area" validate:"area"`
}

func (a ArticleRequest) toArticle() stock.Article {
	return stock.Article{
		Name:        a.Name,
		Description: a.Description,
		Unit:        a.Unit,
		MinStock:    a.MinStock,
		Supplier:    a.Supplier,
		UnitPrice:   a.UnitPrice,
		Area:        a.Area,
	}
}

// MovementRequest records a movement. Area defaults to the article's area
// and At to now.
type MovementRequest struct {
	Article  string             `json:"article" validate:"required"`
	Quantity int                `json:"quantity"`
	Type     stock.MovementType `json:"type" validate:"required,oneof=ingress egress in_transit"`
	Area     generic.Area       `json:"area" validate:"omitempty,area"`
	At       *time.Time         `json:"at"`
}

type ReceiveRequest struct {
	Quantity int `json:"quantity"`
}

type CreatedResponse struct {
	ID string `json:"id"`
}

type InventoryResponse struct {
	Levels    []stock.Level   `json:"levels"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// =============================================================================
// REQUISITIONS
// =============================================================================

type RequisitionRequest struct {
	Article  string       `json:"article" validate:"required"`
	Quantity int          `json:"quantity"`
	Area     generic.Area `json:"area" validate:"omitempty,area"`
}

type ApproveRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type FailureDTO struct {
	RequisitionID string `json:"requisitionId"`
	Error         string `json:"error"`
	Status        int    `json:"status"`
}

type SummaryDTO struct {
	Text  string                  `json:"text"`
	Lines []requisition.OrderLine `json:"lines"`
	Total decimal.Decimal         `json:"total"`
}

// ApprovalResponse reports every id of the batch once.
type ApprovalResponse struct {
	Approved      []requisition.Approval `json:"approved"`
	Skipped       []string               `json:"skipped"`
	Failed        []FailureDTO           `json:"failed"`
	Summary       *SummaryDTO            `json:"summary,omitempty"`
	Dispatch      string                 `json:"dispatch,omitempty"`
	DispatchError string                 `json:"dispatchError,omitempty"`
}

func toApprovalResponse(res requisition.ApprovalResult) ApprovalResponse {
	out := ApprovalResponse{
		Approved: res.Approved,
		Skipped:  res.Skipped,
		Failed:   make([]FailureDTO, len(res.Failed)),
		Dispatch: res.Dispatch,
	}
	if out.Approved == nil {
		out.Approved = []requisition.Approval{}
	}
	if out.Skipped == nil {
		out.Skipped = []string{}
	}
	for i, f := range res.Failed {
		out.Failed[i] = FailureDTO{RequisitionID: f.RequisitionID, Error: f.Err.Error(), Status: statusFor(f.Err)}
	}
	if !res.Summary.Empty() {
		out.Summary = &SummaryDTO{Text: res.Summary.Text(), Lines: res.Summary.Lines, Total: res.Summary.Total}
	}
	if res.DispatchErr != nil {
		out.DispatchError = res.DispatchErr.Error()
	}
	return out
}

// =============================================================================
// SCHEDULING
// =============================================================================

type ScheduleConfigRequest struct {
	WeekStart string `json:"weekStart" validate:"required"`
	WeekCount int    `json:"weekCount"`
}

// AvailabilityRequest replaces the caller's availability in Area (default:
// the caller's area) within the schedule window.
type AvailabilityRequest struct {
	Area generic.Area  `json:"area" validate:"omitempty,area"`
	Days []generic.Day `json:"days"`
}

type AvailabilityResponse struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// ShiftRequest books or moves a shift. Start wins over Day; Day alone
// starts at the default hour in the venue timezone.
type ShiftRequest struct {
	Person string       `json:"person" validate:"required"`
	Area   generic.Area `json:"area" validate:"area"`
	Start  *time.Time   `json:"start"`
	Day    *generic.Day `json:"day"`
}

type ShiftResponse struct {
	ID string `json:"id"`

	// SameDay lists the person's other shifts that day, for an overlap warning.
	SameDay []ShiftDTO `json:"sameDay"`
}

type ShiftDTO struct {
	ID    string       `json:"id"`
	Area  generic.Area `json:"area"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
}
