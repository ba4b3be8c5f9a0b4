// Package kpi loads sales tables and computes the report metrics.
package kpi

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"retailpulse/models"
)

// RequiredColumns are the sales table columns the loader insists on.
// Matching is exact by name and order-independent.
var RequiredColumns = []string{
	"Date",
	"ProductID",
	"ProductName",
	"Category",
	"QuantitySold",
	"PricePerUnit",
	"TotalSales",
}

// reconcileTolerance is the allowed drift between TotalSales and
// QuantitySold*PricePerUnit before a row is flagged (half a cent).
const reconcileTolerance = 0.005

// dateLayouts are tried in order when parsing the Date column as text.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"01-02-06",
}

// RowIssue records one rejected or suspicious input row.
type RowIssue struct {
	Row    int
	Column string
	Reason string
}

// Table is the immutable working table for one report run.
type Table struct {
	Rows []models.SalesRow
}

// LoadResult pairs the loaded table with the skip accumulator so callers can
// see what was dropped and why.
type LoadResult struct {
	Table          Table
	Skipped        []RowIssue
	ReconcileDrift int
}

// Load reads a sales table, detecting the format from the file extension:
// delimited text for .csv, workbook for .xls/.xlsx. It fails with
// MissingColumnError or UnreadableFileError before touching any row data;
// individual malformed rows are skipped and recorded, never fatal.
func Load(path string) (*LoadResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xls", ".xlsx":
		return loadWorkbook(path)
	default:
		return nil, &UnreadableFileError{
			Path: path,
			Err:  fmt.Errorf("unsupported file type %q", filepath.Ext(path)),
		}
	}
}

func loadCSV(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	// Ragged rows are a per-row problem, not a file-level one.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &UnreadableFileError{Path: path, Err: fmt.Errorf("row %d: %w", rowNum, err)}
		}
		result.appendRow(rowNum, columns, record)
	}

	return result, nil
}

func loadWorkbook(path string) (*LoadResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &UnreadableFileError{Path: path, Err: fmt.Errorf("workbook has no sheets")}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &UnreadableFileError{Path: path, Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}
	if len(rows) == 0 {
		return nil, &UnreadableFileError{Path: path, Err: fmt.Errorf("sheet %q is empty", sheets[0])}
	}

	columns, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	for i, record := range rows[1:] {
		if isBlank(record) {
			continue
		}
		result.appendRow(i+2, columns, record)
	}

	return result, nil
}

// mapColumns resolves required column names to their indices, collecting
// every absent name so the error reports them all at once.
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}
	return columns, nil
}

func (r *LoadResult) appendRow(rowNum int, columns map[string]int, record []string) {
	row, err := parseRow(rowNum, columns, record)
	if err != nil {
		invalid := err.(*InvalidRowError)
		r.Skipped = append(r.Skipped, RowIssue{
			Row:    invalid.Row,
			Column: invalid.Column,
			Reason: invalid.Error(),
		})
		return
	}

	if math.Abs(row.TotalSales-float64(row.QuantitySold)*row.PricePerUnit) > reconcileTolerance {
		r.ReconcileDrift++
	}
	r.Table.Rows = append(r.Table.Rows, row)
}

func parseRow(rowNum int, columns map[string]int, record []string) (models.SalesRow, error) {
	cell := func(name string) string {
		idx := columns[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(cell("Date"))
	if err != nil {
		return models.SalesRow{}, &InvalidRowError{Row: rowNum, Column: "Date", Err: err}
	}

	quantity, err := strconv.Atoi(cell("QuantitySold"))
	if err != nil {
		return models.SalesRow{}, &InvalidRowError{Row: rowNum, Column: "QuantitySold", Err: err}
	}

	price, err := strconv.ParseFloat(cell("PricePerUnit"), 64)
	if err != nil {
		return models.SalesRow{}, &InvalidRowError{Row: rowNum, Column: "PricePerUnit", Err: err}
	}

	total, err := strconv.ParseFloat(cell("TotalSales"), 64)
	if err != nil {
		return models.SalesRow{}, &InvalidRowError{Row: rowNum, Column: "TotalSales", Err: err}
	}

	return models.SalesRow{
		Date:         date,
		ProductID:    cell("ProductID"),
		ProductName:  cell("ProductName"),
		Category:     cell("Category"),
		QuantitySold: quantity,
		PricePerUnit: price,
		TotalSales:   total,
	}, nil
}

// parseDate accepts the common text layouts plus Excel serial dates, which
// GetRows yields for unformatted date cells.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
