/*
Package stock is the inventory ledger: articles, stock movements, and the
fold that turns the movement log into current stock.

MOVEMENT LIFECYCLE:

	Ingress/Egress ──archive──▶ archived (still counted)
	InTransit ──confirmReceipt──▶ Ingress (quantity may change)

  InTransit is an open order. It never counts toward stock and cannot be
  archived; the only way out is a confirmed receipt.

AGGREGATION:
  stock(article) = Σ Ingress − Σ Egress over every movement whose article
  snapshot equals the name, archived included, InTransit excluded. The fold
  is commutative: insertion order never matters.

SNAPSHOTS:
  A movement stores the article name and area as they were at creation.
  Editing or deleting an Article never rewrites movements.

SEE ALSO:
  - ledger.go: Ledger service (record, receive, archive, reports)
  - fold.go: pure aggregation
  - view.go: InventoryView recomputed from the change feed
*/
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/generic"
)

// =============================================================================
// MOVEMENT TYPES
// =============================================================================

type MovementType string

const (
	Ingress   MovementType = "ingress"
	Egress    MovementType = "egress"
	InTransit MovementType = "in_transit"
)

func (t MovementType) Valid() bool {
	switch t {
	case Ingress, Egress, InTransit:
		return true
	}
	return false
}

// Label is the operator-facing name shown in reports.
func (t MovementType) Label() string {
	switch t {
	case Ingress:
		return "Ingresso"
	case Egress:
		return "Uscita"
	case InTransit:
		return "In transito"
	}
	return string(t)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Article is a catalog entry. Name is the business key.
type Article struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit" validate:"required"`
	MinStock    int             `json:"minStock" validate:"gte=0"`
	Supplier    string          `json:"supplier,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Area        generic.Area    `json:"area" validate:"area"`
}

// Movement is one entry of the stock log.
type Movement struct {
	ID       string       `json:"id" validate:"required"`
	Article  string       `json:"article" validate:"required"`
	Quantity int          `json:"quantity" validate:"gt=0"`
	Type     MovementType `json:"type" validate:"oneof=ingress egress in_transit"`
	Area     generic.Area `json:"area" validate:"area"`
	At       time.Time    `json:"at"`
	Archived bool         `json:"archived"`

	// SourceRequisition is set on orders spawned by an approved requisition.
	SourceRequisition string `json:"sourceRequisition,omitempty"`

	// Receipt audit. Quantity is overwritten on receipt; the ordered amount
	// survives here.
	OrderedQuantity int        `json:"orderedQuantity,omitempty"`
	ReceivedAt      *time.Time `json:"receivedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	Version   int       `json:"version"`
}

// Counts reports whether the movement participates in current stock.
func (m Movement) Counts() bool { return m.Type != InTransit }

// =============================================================================
// STORE PORTS
// =============================================================================

// MovementFilter narrows ListMovements. Zero values match everything.
type MovementFilter struct {
	Article         string
	Types           []MovementType
	ExcludeArchived bool
}

func (f MovementFilter) Match(m Movement) bool {
	if f.Article != "" && m.Article != f.Article {
		return false
	}
	if f.ExcludeArchived && m.Archived {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Store persists the stockMovements collection.
type Store interface {
	// InsertMovement fails with ErrDuplicate if the id exists.
	InsertMovement(ctx context.Context, m Movement) error

	// GetMovement returns a NotFoundError for an unknown id.
	GetMovement(ctx context.Context, id string) (Movement, error)

	// UpdateMovement replaces the document if its stored version equals
	// m.Version, then stores m.Version+1. Otherwise ErrConcurrentModification.
	UpdateMovement(ctx context.Context, m Movement) error

	// ListMovements returns matches ordered by At, then ID.
	ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error)
}

// ArticleStore persists the articles collection.
type ArticleStore interface {
	SaveArticle(ctx context.Context, a Article) error
	GetArticle(ctx context.Context, name string) (Article, error)
	ListArticles(ctx context.Context) ([]Article, error)
	DeleteArticle(ctx context.Context, name string) error
}
