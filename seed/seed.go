/*
Package seed loads YAML fixtures: the article catalog and the schedule
window. Used to bootstrap a fresh database and by local development.

FORMAT:

	schedule:
	  weekStart: 2024-01-01
	  weekCount: 4
	articles:
	  - name: Farina
	    unit: kg
	    minStock: 10
	    supplier: Molino Rossi
	    unitPrice: "0.90"
	    area: Cucina

Applying a fixture is an upsert by article name; running it twice leaves
the same catalog.
*/
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/stock"
)

type Fixture struct {
	Schedule *Schedule `yaml:"schedule"`
	Articles []Article `yaml:"articles"`
}

type Schedule struct {
	WeekStart string `yaml:"weekStart"`
	WeekCount int    `yaml:"weekCount"`
}

type Article struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
	MinStock    int    `yaml:"minStock"`
	Supplier    string `yaml:"supplier"`
	UnitPrice   string `yaml:"unitPrice"`
	Area        string `yaml:"area"`
}

// Parse decodes a fixture. Unknown keys are rejected.
func Parse(r io.Reader) (Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return Fixture{}, fmt.Errorf("%w: %v", generic.ErrInvalidInput, err)
	}
	return fx, nil
}

func ParseFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer f.Close()
	return Parse(f)
}

func (a Article) toStock() (stock.Article, error) {
	area, err := generic.ParseArea(a.Area)
	if err != nil {
		return stock.Article{}, fmt.Errorf("article %q: %w", a.Name, err)
	}
	price := decimal.Zero
	if a.UnitPrice != "" {
		if price, err = decimal.NewFromString(a.UnitPrice); err != nil {
			return stock.Article{}, fmt.Errorf("article %q: %w", a.Name, &generic.ValidationError{Field: "unitPrice", Reason: err.Error()})
		}
	}
	return stock.Article{
		Name:        a.Name,
		Description: a.Description,
		Unit:        a.Unit,
		MinStock:    a.MinStock,
		Supplier:    a.Supplier,
		UnitPrice:   price,
		Area:        area,
	}, nil
}

// Result counts what Apply wrote.
type Result struct {
	Articles int
	Schedule bool
}

// Apply validates the whole fixture first, then writes it.
func Apply(ctx context.Context, fx Fixture, ledger *stock.Ledger, schedule calendar.Store) (Result, error) {
	articles := make([]stock.Article, 0, len(fx.Articles))
	for _, a := range fx.Articles {
		sa, err := a.toStock()
		if err != nil {
			return Result{}, err
		}
		articles = append(articles, sa)
	}

	var cfg *calendar.Config
	if fx.Schedule != nil {
		c, err := calendar.Parse(fx.Schedule.WeekStart, fx.Schedule.WeekCount)
		if err != nil {
			return Result{}, fmt.Errorf("schedule: %w", err)
		}
		cfg = &c
	}

	var res Result
	for _, a := range articles {
		if err := ledger.SaveArticle(ctx, a); err != nil {
			return res, fmt.Errorf("article %q: %w", a.Name, err)
		}
		res.Articles++
	}
	if cfg != nil {
		if err := schedule.SaveScheduleConfig(ctx, *cfg); err != nil {
			return res, fmt.Errorf("schedule: %w", err)
		}
		res.Schedule = true
	}
	return res, nil
}
