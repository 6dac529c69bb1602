package stock

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const inventorySheet = "Inventario"

var inventoryHeaders = []string{"Articolo", "Area", "Unità", "Giacenza", "Minimo", "Sotto scorta", "Valore"}

// WriteInventoryXLSX renders the inventory report as a single-sheet workbook.
func WriteInventoryXLSX(w io.Writer, levels []Level) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(inventorySheet)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	lowStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#C00000"},
	})
	if err != nil {
		return fmt.Errorf("creating low-stock style: %w", err)
	}

	for i, h := range inventoryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(inventorySheet, cell, h)
		f.SetCellStyle(inventorySheet, cell, cell, headerStyle)
	}

	for r, l := range levels {
		row := r + 2
		low := "no"
		if l.Low {
			low = "sì"
		}
		value, _ := l.Value.Float64()
		values := []any{l.Article, string(l.Area), l.Unit, l.Stock, l.MinStock, low, value}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			f.SetCellValue(inventorySheet, cell, v)
		}
		if l.Low {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			f.SetCellStyle(inventorySheet, first, last, lowStyle)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(inventoryHeaders))
	f.SetColWidth(inventorySheet, "A", last, 15)

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
