package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Column kinds as inferred at load time.
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
	KindDatetime    = "datetime"
)

// Column is a named, typed column of a Frame.
type Column struct {
	Name string
	Kind string
}

// Frame is an immutable in-memory table. All query methods return new frames
// or plain values; nothing mutates the receiver. Generated analysis code runs
// against a Frame bound as `df` inside the sandbox.
type Frame struct {
	Name  string
	cols  []Column
	cells [][]string // row-major
}

// New builds a Frame from a header and rows. Column kinds are inferred from
// the values. Short rows are padded, long rows truncated to the header width.
func New(name string, header []string, rows [][]string) *Frame {
	ncol := len(header)
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, ncol)
		copy(row, r)
		cells = append(cells, row)
	}
	f := &Frame{Name: name, cells: cells}
	f.cols = make([]Column, ncol)
	for i, h := range header {
		f.cols[i] = Column{Name: strings.TrimSpace(h), Kind: inferKind(strings.TrimSpace(h), colValues(cells, i))}
	}
	return f
}

func colValues(cells [][]string, idx int) []string {
	out := make([]string, 0, len(cells))
	for _, r := range cells {
		out = append(out, r[idx])
	}
	return out
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return len(f.cells) }

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the ordered column descriptors.
func (f *Frame) Columns() []Column {
	out := make([]Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// ColumnNames returns the ordered column names.
func (f *Frame) ColumnNames() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

// HasColumn reports whether a column exists (case-insensitive).
func (f *Frame) HasColumn(name string) bool { return f.colIndex(name) >= 0 }

func (f *Frame) colIndex(name string) int {
	for i, c := range f.cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Col returns the raw string values of a column, or nil if absent.
func (f *Frame) Col(name string) []string {
	idx := f.colIndex(name)
	if idx < 0 {
		return nil
	}
	return colValues(f.cells, idx)
}

// Numbers returns a column parsed as float64. Unparseable or empty cells
// come back as NaN so callers can skip them.
func (f *Frame) Numbers(name string) []float64 {
	idx := f.colIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(f.cells))
	for i, r := range f.cells {
		v := strings.TrimSpace(r[idx])
		if v == "" {
			out[i] = math.NaN()
			continue
		}
		x, err := cast.ToFloat64E(v)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = x
	}
	return out
}

// Row is a view over one frame row.
type Row struct {
	f   *Frame
	idx int
}

// Get returns the raw cell value for a column, "" if absent.
func (r Row) Get(col string) string {
	i := r.f.colIndex(col)
	if i < 0 {
		return ""
	}
	return r.f.cells[r.idx][i]
}

// Num returns the cell parsed as float64, NaN when unparseable.
func (r Row) Num(col string) float64 {
	v := strings.TrimSpace(r.Get(col))
	if v == "" {
		return math.NaN()
	}
	x, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return x
}

// Filter returns the rows whose column equals value, compared
// case-insensitively after trimming.
func (f *Frame) Filter(col, value string) *Frame {
	want := strings.ToLower(strings.TrimSpace(value))
	return f.Where(func(r Row) bool {
		return strings.ToLower(strings.TrimSpace(r.Get(col))) == want
	})
}

// Where returns the rows matching the predicate.
func (f *Frame) Where(pred func(Row) bool) *Frame {
	out := &Frame{Name: f.Name, cols: f.cols}
	for i := range f.cells {
		if pred(Row{f: f, idx: i}) {
			out.cells = append(out.cells, f.cells[i])
		}
	}
	return out
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 {
		n = 0
	}
	if n > len(f.cells) {
		n = len(f.cells)
	}
	return &Frame{Name: f.Name, cols: f.cols, cells: f.cells[:n]}
}

// SortBy returns rows ordered by the given column. Numeric columns sort by
// value, others lexically (case-insensitive). desc reverses the order.
func (f *Frame) SortBy(col string, desc bool) *Frame {
	idx := f.colIndex(col)
	out := &Frame{Name: f.Name, cols: f.cols, cells: make([][]string, len(f.cells))}
	copy(out.cells, f.cells)
	if idx < 0 {
		return out
	}
	numeric := f.cols[idx].Kind == KindNumeric
	sort.SliceStable(out.cells, func(i, j int) bool {
		a, b := out.cells[i][idx], out.cells[j][idx]
		var less bool
		if numeric {
			fa, ea := cast.ToFloat64E(strings.TrimSpace(a))
			fb, eb := cast.ToFloat64E(strings.TrimSpace(b))
			switch {
			case ea != nil:
				less = false
			case eb != nil:
				less = true
			default:
				less = fa < fb
			}
		} else {
			less = strings.ToLower(a) < strings.ToLower(b)
		}
		if desc {
			return !less
		}
		return less
	})
	return out
}

// Unique returns the distinct trimmed values of a column in first-seen order.
func (f *Frame) Unique(col string) []string {
	idx := f.colIndex(col)
	if idx < 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range f.cells {
		v := strings.TrimSpace(r[idx])
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Sum adds the parseable numeric values of a column.
func (f *Frame) Sum(col string) float64 {
	var s float64
	for _, x := range f.Numbers(col) {
		if !math.IsNaN(x) {
			s += x
		}
	}
	return s
}

// Mean averages the parseable numeric values of a column; NaN when empty.
func (f *Frame) Mean(col string) float64 {
	var s float64
	var n int
	for _, x := range f.Numbers(col) {
		if !math.IsNaN(x) {
			s += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// Min returns the smallest parseable value of a column; NaN when empty.
func (f *Frame) Min(col string) float64 {
	out := math.NaN()
	for _, x := range f.Numbers(col) {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(out) || x < out {
			out = x
		}
	}
	return out
}

// Max returns the largest parseable value of a column; NaN when empty.
func (f *Frame) Max(col string) float64 {
	out := math.NaN()
	for _, x := range f.Numbers(col) {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(out) || x > out {
			out = x
		}
	}
	return out
}

// Count returns the number of non-empty cells in a column.
func (f *Frame) Count(col string) int {
	idx := f.colIndex(col)
	if idx < 0 {
		return 0
	}
	var n int
	for _, r := range f.cells {
		if strings.TrimSpace(r[idx]) != "" {
			n++
		}
	}
	return n
}

// GroupSum aggregates valueCol by the distinct values of groupCol.
// Group keys are trimmed and lowercased.
func (f *Frame) GroupSum(groupCol, valueCol string) map[string]float64 {
	gi := f.colIndex(groupCol)
	if gi < 0 {
		return nil
	}
	nums := f.Numbers(valueCol)
	if nums == nil {
		return nil
	}
	out := map[string]float64{}
	for i, r := range f.cells {
		if math.IsNaN(nums[i]) {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(r[gi]))
		out[key] += nums[i]
	}
	return out
}

// GroupCount counts rows by the distinct values of groupCol.
func (f *Frame) GroupCount(groupCol string) map[string]int {
	gi := f.colIndex(groupCol)
	if gi < 0 {
		return nil
	}
	out := map[string]int{}
	for _, r := range f.cells {
		out[strings.ToLower(strings.TrimSpace(r[gi]))]++
	}
	return out
}

// String renders the frame as an aligned text table, capped at 20 rows.
func (f *Frame) String() string {
	var b strings.Builder
	widths := make([]int, len(f.cols))
	for i, c := range f.cols {
		widths[i] = len(c.Name)
	}
	limit := len(f.cells)
	if limit > 20 {
		limit = 20
	}
	for _, r := range f.cells[:limit] {
		for i, v := range r {
			if len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}
	for i, c := range f.cols {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], c.Name)
	}
	b.WriteByte('\n')
	for _, r := range f.cells[:limit] {
		for i, v := range r {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], v)
		}
		b.WriteByte('\n')
	}
	if len(f.cells) > limit {
		fmt.Fprintf(&b, "... %d more rows\n", len(f.cells)-limit)
	}
	return b.String()
}
