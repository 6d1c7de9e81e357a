package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"permscreen/domain/cohort"
	"permscreen/domain/core"
	"permscreen/ports"
)

// TableData is the raw tabular content of a data file
type TableData struct {
	Headers []string
	Rows    [][]string
}

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadData reads the file into structured form
func (r *DataReader) ReadData() (*TableData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *DataReader) readCSVData() (*TableData, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file must contain a header row and at least one data row")
	}

	return &TableData{Headers: records[0], Rows: records[1:]}, nil
}

func (r *DataReader) readExcelData() (*TableData, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s must contain a header row and at least one data row", sheets[0])
	}

	return &TableData{Headers: rows[0], Rows: rows[1:]}, nil
}

// BuildBundle derives a labeled cohort bundle from raw table data: the label
// column is mapped onto the two configured categories, outcome columns are
// selected by name prefix, and non-numeric or blank cells become NaN.
// Observations whose label matches neither category are dropped.
func BuildBundle(data *TableData, spec ports.CohortSpec) (*cohort.Bundle, error) {
	labelIdx := -1
	outcomeIdx := make([]int, 0, len(data.Headers))
	for i, h := range data.Headers {
		name := strings.TrimSpace(h)
		if name == spec.LabelColumn {
			labelIdx = i
			continue
		}
		if spec.OutcomePrefix != "" && strings.HasPrefix(name, spec.OutcomePrefix) {
			outcomeIdx = append(outcomeIdx, i)
		}
	}
	if labelIdx < 0 {
		return nil, core.NewInvalidInputError(fmt.Sprintf("label column %q not found", spec.LabelColumn))
	}
	if len(outcomeIdx) == 0 {
		return nil, core.NewInvalidInputError(fmt.Sprintf("no outcome columns match prefix %q", spec.OutcomePrefix))
	}

	labels := make([]cohort.Label, len(data.Rows))
	for i, row := range data.Rows {
		raw := ""
		if labelIdx < len(row) {
			raw = strings.TrimSpace(row[labelIdx])
		}
		labels[i] = cohort.ParseLabel(raw, spec.CategoryA, spec.CategoryB)
	}

	bundle := cohort.NewBundle(core.CohortID(core.NewID()), labels)
	for _, col := range outcomeIdx {
		values := make([]float64, len(data.Rows))
		for i, row := range data.Rows {
			values[i] = parseCell(row, col)
		}
		if err := bundle.AddColumn(core.VariableKey(strings.TrimSpace(data.Headers[col])), values); err != nil {
			return nil, err
		}
	}

	return bundle.FilterLabeled(), nil
}

// parseCell converts one cell to a float, treating blanks, short rows and
// unparseable values as missing
func parseCell(row []string, col int) float64 {
	if col >= len(row) {
		return math.NaN()
	}
	cell := strings.TrimSpace(row[col])
	if cell == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// CohortReader implements ports.CohortReaderPort over file-based tables
type CohortReader struct{}

// NewCohortReader creates the default file-backed cohort reader
func NewCohortReader() *CohortReader {
	return &CohortReader{}
}

// ReadCohort loads the file at path and derives the cohort bundle named by spec
func (c *CohortReader) ReadCohort(ctx context.Context, path string, spec ports.CohortSpec) (*cohort.Bundle, error) {
	data, err := NewDataReader(path).ReadData()
	if err != nil {
		return nil, err
	}
	return BuildBundle(data, spec)
}
