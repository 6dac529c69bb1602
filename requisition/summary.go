package requisition

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ORDER SUMMARY - Projection of an approval batch, not state
// =============================================================================

const summaryHeader = "Ciao, dovrei ordinare:"

type OrderLine struct {
	Article   string          `json:"article"`
	Quantity  int             `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Cost      decimal.Decimal `json:"cost"`
}

type OrderSummary struct {
	Lines []OrderLine `json:"lines"`

	// Total is the estimated cost at current catalog prices.
	Total decimal.Decimal `json:"total"`
}

func (s *OrderSummary) add(line OrderLine) {
	line.Cost = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	s.Lines = append(s.Lines, line)
	s.Total = s.Total.Add(line.Cost)
}

func (s OrderSummary) Empty() bool { return len(s.Lines) == 0 }

// Text is the message sent to the supplier, one bullet per line:
//
//	Ciao, dovrei ordinare:
//	• 20 kg × Farina
func (s OrderSummary) Text() string {
	var b strings.Builder
	b.WriteString(summaryHeader)
	b.WriteByte('\n')
	for _, l := range s.Lines {
		if l.Unit != "" {
			fmt.Fprintf(&b, "• %d %s × %s\n", l.Quantity, l.Unit, l.Article)
		} else {
			fmt.Fprintf(&b, "• %d × %s\n", l.Quantity, l.Article)
		}
	}
	return b.String()
}

// DispatchLink returns baseURL?text=<summary>, percent-encoded with %20 for
// spaces so messaging apps render it verbatim.
func (s OrderSummary) DispatchLink(baseURL string) string {
	return baseURL + "?text=" + encodeComponent(s.Text())
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// =============================================================================
// DISPATCH - Outbound messaging collaborator
// =============================================================================

// Dispatcher hands an order summary to an external channel and returns a
// reference the caller can show (a link, a message id).
type Dispatcher interface {
	Dispatch(ctx context.Context, summary OrderSummary) (string, error)
}

// LinkDispatcher produces a click-to-send link. The operator's client opens
// it; nothing leaves the process.
type LinkDispatcher struct {
	BaseURL string
	Log     zerolog.Logger
}

func NewLinkDispatcher(baseURL string, log zerolog.Logger) *LinkDispatcher {
	return &LinkDispatcher{BaseURL: baseURL, Log: log}
}

func (d *LinkDispatcher) Dispatch(_ context.Context, summary OrderSummary) (string, error) {
	if d.BaseURL == "" {
		return "", fmt.Errorf("dispatch: no base URL configured")
	}
	if summary.Empty() {
		return "", nil
	}
	link := summary.DispatchLink(d.BaseURL)
	d.Log.Info().Int("lines", len(summary.Lines)).Str("total", summary.Total.StringFixed(2)).Msg("order summary ready for dispatch")
	return link, nil
}
