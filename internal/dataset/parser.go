package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// requiredColumns are the headers an upload must carry, case-insensitive.
// "name" is the entity identifier; "date" is optional and kept as-is.
var requiredColumns = []string{"name", "open", "high", "low", "close", "volume"}

// Parse reads an uploaded price table. The format is chosen by file extension:
// ".xlsx" goes through excelize, everything else is treated as delimited text.
func Parse(r io.Reader, filename string) (*Dataset, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return ParseExcel(r)
	}
	return ParseCSV(r)
}

// ParseCSV reads a comma-delimited price table with a header row
func ParseCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, buildRow(record, cols))
	}

	return &Dataset{rows: rows}, nil
}

// ParseExcel reads the first sheet of an Excel workbook as a price table
func ParseExcel(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, buildRow(record, cols))
	}

	return &Dataset{rows: rows}, nil
}

// columnMap holds the header position of each known column, -1 when absent
type columnMap struct {
	name, date, open, high, low, close, volume int
}

// mapColumns locates the required columns in the header, case-insensitive
func mapColumns(header []string) (columnMap, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := positions[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return columnMap{}, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}

	cols := columnMap{
		name:   positions["name"],
		open:   positions["open"],
		high:   positions["high"],
		low:    positions["low"],
		close:  positions["close"],
		volume: positions["volume"],
		date:   -1,
	}
	if i, ok := positions["date"]; ok {
		cols.date = i
	}
	return cols, nil
}

// buildRow converts one record into a Row, marking bad numerics as missing
func buildRow(record []string, cols columnMap) Row {
	row := Row{
		Ticker: cell(record, cols.name),
		Open:   parseFloat(cell(record, cols.open)),
		High:   parseFloat(cell(record, cols.high)),
		Low:    parseFloat(cell(record, cols.low)),
		Close:  parseFloat(cell(record, cols.close)),
		Volume: parseFloat(cell(record, cols.volume)),
	}
	if cols.date >= 0 {
		row.Date = cell(record, cols.date)
	}
	return row
}

// cell returns the trimmed value at index i, or "" for short records
func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseFloat converts a cell to float64; empty or unparseable cells become NaN
func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	// Tolerate thousands separators that spreadsheets sometimes emit
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
