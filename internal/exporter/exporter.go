// Package exporter renders prediction results into downloadable files.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"stocklab/internal/session"
)

// ResultHeaders are the columns of an exported prediction result
var ResultHeaders = []string{"actual", "predicted"}

// WriteOptions configures CSV rendering
type WriteOptions struct {
	// BOMPrefix adds a UTF-8 BOM so Excel recognizes the encoding
	BOMPrefix bool
}

// WriteResultCSV renders the actual and predicted pairs as CSV
func WriteResultCSV(w io.Writer, res *session.Result, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(ResultHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, pair := range res.Pairs {
		record := []string{
			formatFloat(pair.Actual),
			formatFloat(pair.Predicted),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteResultXLSX renders the pairs as a single-sheet Excel workbook
func WriteResultXLSX(w io.Writer, res *session.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, header := range ResultHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to address header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, pair := range res.Pairs {
		values := []float64{pair.Actual, pair.Predicted}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to address cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write record %d: %w", i, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
