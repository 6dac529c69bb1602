package stock

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/generic"
)

// =============================================================================
// FOLD - Pure aggregation, no I/O
// =============================================================================

// Fold sums Ingress minus Egress per article name. InTransit is skipped,
// archived movements count.
func Fold(movements []Movement) map[string]int {
	totals := make(map[string]int)
	for _, m := range movements {
		switch m.Type {
		case Ingress:
			totals[m.Article] += m.Quantity
		case Egress:
			totals[m.Article] -= m.Quantity
		}
	}
	return totals
}

// StockOf is Fold restricted to one article.
func StockOf(movements []Movement, article string) int {
	total := 0
	for _, m := range movements {
		if m.Article != article {
			continue
		}
		switch m.Type {
		case Ingress:
			total += m.Quantity
		case Egress:
			total -= m.Quantity
		}
	}
	return total
}

// IsLow is the shortage rule: stock strictly below the minimum.
func IsLow(stock int, a Article) bool { return stock < a.MinStock }

// =============================================================================
// LEVELS - Per-article inventory report rows
// =============================================================================

// Level is one row of the inventory report.
type Level struct {
	Article  string          `json:"article"`
	Unit     string          `json:"unit"`
	Area     generic.Area    `json:"area"`
	MinStock int             `json:"minStock"`
	Stock    int             `json:"stock"`
	Low      bool            `json:"low"`
	Value    decimal.Decimal `json:"value"`
}

// Levels joins folded totals with the catalog. Articles in the catalog with
// no movements show zero stock; totals for names missing from the catalog
// are dropped. Rows are sorted by area, then name.
func Levels(articles []Article, totals map[string]int, areas generic.AreaSet) []Level {
	levels := make([]Level, 0, len(articles))
	for _, a := range articles {
		if !areas.Contains(a.Area) {
			continue
		}
		stock := totals[a.Name]
		levels = append(levels, Level{
			Article:  a.Name,
			Unit:     a.Unit,
			Area:     a.Area,
			MinStock: a.MinStock,
			Stock:    stock,
			Low:      IsLow(stock, a),
			Value:    a.UnitPrice.Mul(decimal.NewFromInt(int64(stock))),
		})
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Area != levels[j].Area {
			return levels[i].Area < levels[j].Area
		}
		return levels[i].Article < levels[j].Article
	})
	return levels
}

// TotalValue sums the valuation of every level.
func TotalValue(levels []Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Value)
	}
	return total
}
