// Package export writes search results to spreadsheet files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kosarica/deal-service/internal/types"
)

// SheetName is the worksheet that holds the listings
const SheetName = "Results"

var header = []any{"#", "Product", "Store", "Price", "Discount %", "URL", "Image"}

// WriteXLSX writes listings as one row each, in the given order, below a
// header row
func WriteXLSX(w io.Writer, query string, listings []types.Listing) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: query, Creator: "deal-service"}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}
	if err := sw.SetColWidth(2, 2, 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := sw.SetColWidth(6, 6, 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, l := range listings {
		price, _ := l.Price.Float64()
		row := []any{i + 1, l.Name, l.Store, price, "", l.URL, ""}
		if l.DiscountPercent != nil {
			row[4] = *l.DiscountPercent
		}
		if l.Image != nil {
			row[6] = *l.Image
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
