// Package parsers loads the four audit source workbooks and normalizes them
// into canonical record sets.
//
// Inputs are single-sheet spreadsheet exports: xlsx workbooks or csv files,
// first row = header. Column names vary between exports, so a per-category
// alias table maps whatever headers are present onto canonical field names
// (see normalize.go). A canonical field with no matching source column is
// absent, never an error; downstream components degrade gracefully.
//
// Parsing never fails on a malformed cell: dates, amounts and years are
// coerced to Null sentinels. Only an unreadable workbook is fatal.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rcf-audit-service/pkg/errors"
	"rcf-audit-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// Table is a raw tabular record set: a cleaned header row plus data rows in
// source order. Rows may be shorter than the header when trailing cells are
// empty; Cell handles the bounds check.
type Table struct {
	Source  string
	Headers []string
	Rows    [][]string
}

// LoadTable reads a workbook into a Table. The format is chosen by file
// extension: .xlsx/.xlsm via excelize (first sheet), anything else as csv.
// maxRows, when positive, is a fail-fast row budget for oversized exports.
func LoadTable(path string, maxRows int) (*Table, error) {
	log := logger.GetGlobalLogger().WithComponent("parsers")
	log.WithField("file_path", path).Debug("Loading source table")

	var table *Table
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = loadExcel(path)
	default:
		table, err = loadCSV(path)
	}
	if err != nil {
		return nil, err
	}

	if maxRows > 0 && len(table.Rows) > maxRows {
		return nil, errors.AuditProcessingError(errors.CodeRowBudgetExceeded, "table load", nil).
			WithContext("file_path", path).
			WithContext("rows", len(table.Rows)).
			WithContext("max_rows", maxRows)
	}

	table.Headers = cleanHeaders(table.Headers)

	log.WithFields(logger.Fields{
		"file_path": path,
		"columns":   len(table.Headers),
		"rows":      len(table.Rows),
	}).Debug("Loaded source table")

	return table, nil
}

func loadExcel(path string) (*Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.FileError(errors.CodeFileCorrupted, path,
			fmt.Errorf("workbook contains no sheets"))
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if len(rows) == 0 {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 1, "headers", "",
			fmt.Errorf("sheet %q is empty", sheets[0])).
			WithSuggestion("ensure the first sheet contains a header row and data rows")
	}

	return &Table{
		Source:  path,
		Headers: rows[0],
		Rows:    dropEmptyRows(rows[1:]),
	}, nil
}

func loadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, 1, "headers", "",
				fmt.Errorf("file is empty")).
				WithSuggestion("ensure the file contains a header row and data rows")
		}
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 1, "headers", "", err)
	}

	var rows [][]string
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, "", "", err)
		}
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, record)
	}

	return &Table{
		Source:  path,
		Headers: headers,
		Rows:    rows,
	}, nil
}

// cleanHeaders strips leading/trailing whitespace from every header name
// before alias matching.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

func dropEmptyRows(rows [][]string) [][]string {
	var kept [][]string
	for _, row := range rows {
		if !isEmptyRecord(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// HeaderIndex maps each header name to its first column position.
func (t *Table) HeaderIndex() map[string]int {
	index := make(map[string]int, len(t.Headers))
	for i, header := range t.Headers {
		if _, exists := index[header]; !exists {
			index[header] = i
		}
	}
	return index
}

// HasField reports whether a column with the given name is present.
func (t *Table) HasField(name string) bool {
	for _, header := range t.Headers {
		if header == name {
			return true
		}
	}
	return false
}

// Cell returns the value of the named column in the given row. Rows shorter
// than the header yield an empty cell.
func (t *Table) Cell(row []string, index map[string]int, name string) string {
	col, exists := index[name]
	if !exists || col >= len(row) {
		return ""
	}
	return row[col]
}
