/*
Package generic provides the domain-agnostic building blocks of the back-office engine.

PURPOSE:
  This package contains the primitives every venue component shares: the
  operational areas, the identity handed over by the presentation layer,
  timezone-neutral calendar days, the error taxonomy, boundary validation
  and the change feed that drives derived views.

KEY CONCEPTS IN THIS FILE (types.go):
  - Area: the two operational zones that partition articles, staff and movements
  - Role / Actor: already-authenticated identity supplied by the caller
  - Collection: the named document collections the engine maps onto

DESIGN PRINCIPLES:
  1. Trusted input: the engine never authenticates, it only reads Actor
  2. Snapshots: documents copy names and areas at creation time, never live references
  3. Fixed schema: every document is a typed record validated at the store boundary

SEE ALSO:
  - time.go: Day, the calendar date used for availability and grids
  - errors.go: Sentinel and structured errors
  - feed.go: Change notifications (push-based read model)
*/
package generic

import "fmt"

// =============================================================================
// AREA - Operational zone
// =============================================================================

type Area string

const (
	AreaSala   Area = "Sala"   // front of house
	AreaCucina Area = "Cucina" // kitchen
)

// Areas lists every operational area in display order.
var Areas = []Area{AreaSala, AreaCucina}

func (a Area) Valid() bool { return a == AreaSala || a == AreaCucina }

func (a Area) String() string { return string(a) }

// ParseArea accepts the exact area names only.
func ParseArea(s string) (Area, error) {
	a := Area(s)
	if !a.Valid() {
		return "", &ValidationError{Field: "area", Reason: fmt.Sprintf("unknown area %q", s)}
	}
	return a, nil
}

// AreaSet is a multi-select filter. An empty set matches every area.
type AreaSet map[Area]bool

func NewAreaSet(areas ...Area) AreaSet {
	s := make(AreaSet, len(areas))
	for _, a := range areas {
		s[a] = true
	}
	return s
}

func (s AreaSet) Contains(a Area) bool {
	if len(s) == 0 {
		return true
	}
	return s[a]
}

// =============================================================================
// IDENTITY - Supplied by the presentation layer
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager" // "responsabile"
	RoleStaff   Role = "staff"   // "dipendente"
)

// Actor is the caller as already authenticated upstream.
type Actor struct {
	Name string
	Area Area
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// System is used for writes the engine performs on its own behalf.
var System = Actor{Name: "system", Role: RoleAdmin}

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names map 1:1 onto the document collections of the store.
type Collection string

const (
	CollectionArticles       Collection = "articles"
	CollectionStockMovements Collection = "stockMovements"
	CollectionRequisitions   Collection = "requisitions"
	CollectionAvailability   Collection = "availability"
	CollectionShifts         Collection = "shifts"
	CollectionScheduleConfig Collection = "scheduleConfig"
)

// Collections lists every collection, in the order used for migrations.
var Collections = []Collection{
	CollectionArticles,
	CollectionStockMovements,
	CollectionRequisitions,
	CollectionAvailability,
	CollectionShifts,
	CollectionScheduleConfig,
}
