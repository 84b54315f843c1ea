package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// kindSampleSize bounds how many values are inspected per column when
// inferring its kind.
const kindSampleSize = 1000

var datetimeNameHints = []string{"time", "date", "timestamp", "datetime", "created", "updated"}

// Load reads a tabular file into a Frame, choosing the parser by extension.
// Supported: .csv, .tsv, .xlsx, .json.
func Load(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadDelimited(path, ',')
	case ".tsv":
		return loadDelimited(path, '\t')
	case ".xlsx":
		return loadXLSX(path)
	case ".json":
		return loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported format: %s", filepath.Ext(path))
	}
}

func loadDelimited(path string, delim rune) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make([]string, len(rec))
		copy(row, rec)
		rows = append(rows, row)
	}
	return New(filepath.Base(path), header, rows), nil
}

func loadXLSX(path string) (*Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", filepath.Base(path))
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	return New(filepath.Base(path), rows[0], rows[1:]), nil
}

// loadJSON accepts an array of flat objects. Column order follows first
// appearance across records.
func loadJSON(path string) (*Frame, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records in %s", filepath.Base(path))
	}
	var header []string
	seen := map[string]bool{}
	for _, rec := range records {
		// map iteration order is random; keep per-record keys sorted for
		// a stable header when keys first appear together
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sortStrings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := rec[k]; ok && v != nil {
				row[i] = cast.ToString(v)
			}
		}
		rows = append(rows, row)
	}
	return New(filepath.Base(path), header, rows), nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// inferKind classifies a column by sampling values and counting which parse
// as numbers, datetimes, or neither; the majority wins. A datetime-ish name
// breaks ties toward datetime.
func inferKind(name string, values []string) string {
	var numCnt, dtCnt, txtCnt, nonEmpty int
	for i, v := range values {
		if i >= kindSampleSize {
			break
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		nonEmpty++
		if _, err := cast.ToFloat64E(v); err == nil {
			numCnt++
			continue
		}
		if _, ok := parseTimeMaybe(v); ok {
			dtCnt++
			continue
		}
		txtCnt++
	}
	if nonEmpty == 0 {
		return KindCategorical
	}
	nameHint := false
	lower := strings.ToLower(name)
	for _, kw := range datetimeNameHints {
		if strings.Contains(lower, kw) {
			nameHint = true
			break
		}
	}
	switch {
	case dtCnt > 0 && (nameHint || (dtCnt >= numCnt && dtCnt >= txtCnt)):
		return KindDatetime
	case numCnt >= txtCnt && numCnt > 0:
		return KindNumeric
	default:
		return KindCategorical
	}
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
