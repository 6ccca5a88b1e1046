// Package sheet reads timetable exports into raw rows. Header rows and rows
// without a subject code are dropped here; everything else is passed through
// verbatim for the timetable package to interpret.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"ttcal/internal/model"
)

// Columns is the fixed column order of a timetable export.
var Columns = []string{
	"Subject Code", "Description", "Group", "Activity",
	"Day", "Time", "Campus", "Location", "Duration", "Dates",
}

// ErrUnsupportedFile is returned for extensions no reader handles.
var ErrUnsupportedFile = errors.New("unsupported file type")

// Reader produces the data rows of one file.
type Reader interface {
	Read(path string) ([]model.RawRow, error)
}

// FileReader dispatches on the file extension.
type FileReader struct {
	// SkipRows is the number of leading non-data rows.
	SkipRows int
}

// Read implements Reader.
func (r FileReader) Read(path string) ([]model.RawRow, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	case ".xls":
		records, err = readXLS(path)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Rows(filepath.Base(path), records, r.SkipRows), nil
}

// Rows maps raw records onto RawRow, skipping the first skip records and
// any record whose subject code cell is blank. Short records are padded.
func Rows(file string, records [][]string, skip int) []model.RawRow {
	out := make([]model.RawRow, 0, len(records))
	for i, rec := range records {
		if i < skip {
			continue
		}
		cell := func(col int) string {
			if col < len(rec) {
				return rec[col]
			}
			return ""
		}
		if strings.TrimSpace(cell(0)) == "" {
			continue
		}
		out = append(out, model.RawRow{
			File:        file,
			Index:       i + 1,
			SubjectCode: cell(0),
			Description: cell(1),
			Group:       cell(2),
			Activity:    cell(3),
			Day:         cell(4),
			Time:        cell(5),
			Campus:      cell(6),
			Location:    cell(7),
			Duration:    cell(8),
			Dates:       cell(9),
		})
	}
	return out
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// readXLS reads the first sheet of a legacy BIFF workbook, the format the
// timetable system exports by default.
func readXLS(path string) (records [][]string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	// The decoder panics on some truncated or non-OLE inputs.
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("malformed xls workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(fh, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	first := wb.GetSheet(0)
	if first == nil || first.MaxRow == 0 {
		return nil, nil
	}
	// ReadAllCells walks sheets in order; capping at the first sheet's row
	// count keeps later sheets out.
	return wb.ReadAllCells(int(first.MaxRow) + 1), nil
}

func readCSV(path string) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return parseCSV(fh)
}

func parseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}
