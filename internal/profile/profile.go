package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/dataset"
)

// maxIndexCardinality guards the semantic value index against high-entropy
// identifier-like columns.
const maxIndexCardinality = 1000

var (
	idKeywords     = []string{"id", "code", "key", "serial", "udi", "number", "name", "sku", "isbn"}
	targetKeywords = []string{"fail", "target", "label", "class", "status", "output", "price", "total", "rating", "score"}
	stopWords      = map[string]bool{"the": true, "and": true, "for": true, "with": true, "from": true, "inc": true, "ltd": true}
)

// Stats summarizes a numeric column.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Std    float64
}

// CorrMatrix is a symmetric Pearson correlation matrix over numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64
}

// At returns the correlation between two named columns, 0 when unknown.
func (m *CorrMatrix) At(a, b string) float64 {
	ia, ib := -1, -1
	for i, c := range m.Columns {
		if strings.EqualFold(c, a) {
			ia = i
		}
		if strings.EqualFold(c, b) {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0
	}
	return m.Values[ia][ib]
}

// Profile is an immutable statistical and semantic snapshot of a dataset.
// It is built once per dataset load and never mutated afterwards; swapping
// the dataset builds a fresh Profile.
type Profile struct {
	DatasetName        string
	RowCount           int
	Columns            []dataset.Column
	NumericColumns     []string
	CategoricalColumns []string
	Stats              map[string]Stats
	Correlations       *CorrMatrix
	IDColumns          []string
	TargetColumns      []string
	// ValueIndex maps a normalized token to the columns in which it occurs,
	// either as a column-name word or as a categorical cell value.
	ValueIndex map[string][]string

	samples map[string]string
}

// Build constructs a Profile from a loaded frame. It is deterministic and
// never fails as a whole; columns that cannot be indexed are skipped with a
// logged warning.
func Build(f *dataset.Frame, log *zap.SugaredLogger) *Profile {
	p := &Profile{
		DatasetName: f.Name,
		RowCount:    f.NumRows(),
		Columns:     f.Columns(),
		Stats:       map[string]Stats{},
		ValueIndex:  map[string][]string{},
		samples:     map[string]string{},
	}
	for _, c := range p.Columns {
		switch c.Kind {
		case dataset.KindNumeric:
			p.NumericColumns = append(p.NumericColumns, c.Name)
		default:
			p.CategoricalColumns = append(p.CategoricalColumns, c.Name)
		}
		for _, v := range f.Col(c.Name) {
			if strings.TrimSpace(v) != "" {
				p.samples[c.Name] = strings.TrimSpace(v)
				break
			}
		}
	}

	for _, name := range p.NumericColumns {
		p.Stats[name] = computeStats(f.Numbers(name))
	}
	if len(p.NumericColumns) >= 2 {
		p.Correlations = correlate(f, p.NumericColumns)
	}

	p.IDColumns = matchColumns(p.Columns, idKeywords)
	if len(p.IDColumns) == 0 && len(p.Columns) > 0 {
		first := p.Columns[0].Name
		if allUnique(f, first) {
			p.IDColumns = []string{first}
		}
	}
	p.TargetColumns = matchColumns(p.Columns, targetKeywords)

	p.buildValueIndex(f, log)
	return p
}

func matchColumns(cols []dataset.Column, keywords []string) []string {
	var out []string
	for _, c := range cols {
		lower := strings.ToLower(c.Name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

func allUnique(f *dataset.Frame, col string) bool {
	vals := f.Col(col)
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func computeStats(vals []float64) Stats {
	// Welford accumulation with a separate sorted copy for the median.
	var n int
	var mean, m2 float64
	mn, mx := math.Inf(1), math.Inf(-1)
	clean := make([]float64, 0, len(vals))
	for _, x := range vals {
		if math.IsNaN(x) {
			continue
		}
		clean = append(clean, x)
		n++
		if x < mn {
			mn = x
		}
		if x > mx {
			mx = x
		}
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	if n == 0 {
		return Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), Median: math.NaN(), Std: math.NaN()}
	}
	s := Stats{Min: mn, Max: mx, Mean: mean}
	if n > 1 {
		s.Std = math.Sqrt(m2 / float64(n-1))
	}
	sort.Float64s(clean)
	if n%2 == 1 {
		s.Median = clean[n/2]
	} else {
		s.Median = (clean[n/2-1] + clean[n/2]) / 2
	}
	return s
}

func correlate(f *dataset.Frame, numeric []string) *CorrMatrix {
	n := len(numeric)
	cols := make([][]float64, n)
	for i, name := range numeric {
		cols[i] = f.Numbers(name)
	}
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(cols[a], cols[b])
			mat[a][b] = r
			mat[b][a] = r
		}
	}
	return &CorrMatrix{Columns: append([]string(nil), numeric...), Values: mat}
}

// pearson computes the correlation over pairwise-complete observations.
func pearson(xs, ys []float64) float64 {
	var n, sx, sy, sxx, syy, sxy float64
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		n++
		sx += x
		sy += y
		sxx += x * x
		syy += y * y
		sxy += x * y
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sxx - sx*sx) * (n*syy - sy*sy))
	if denom == 0 {
		return 0
	}
	r := (n*sxy - sx*sy) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func (p *Profile) buildValueIndex(f *dataset.Frame, log *zap.SugaredLogger) {
	add := func(token, col string) {
		token = strings.ToLower(strings.TrimSpace(token))
		if len(token) <= 2 || stopWords[token] {
			return
		}
		for _, existing := range p.ValueIndex[token] {
			if existing == col {
				return
			}
		}
		p.ValueIndex[token] = append(p.ValueIndex[token], col)
	}

	// Column-name words map regardless of kind, so "total sales" grounds to
	// a numeric TOTAL_SALES column.
	for _, c := range p.Columns {
		for _, tok := range strings.Fields(strings.ReplaceAll(strings.ToLower(c.Name), "_", " ")) {
			add(tok, c.Name)
		}
	}

	for _, col := range p.CategoricalColumns {
		uniq := f.Unique(col)
		if len(uniq) > maxIndexCardinality {
			if log != nil {
				log.Warnw("skipping high-cardinality column in value index",
					"column", col, "distinct", len(uniq))
			}
			continue
		}
		for _, v := range uniq {
			norm := strings.ToLower(strings.TrimSpace(v))
			if norm == "" {
				continue
			}
			if len(norm) > 2 && !stopWords[norm] {
				found := false
				for _, existing := range p.ValueIndex[norm] {
					if existing == col {
						found = true
						break
					}
				}
				if !found {
					p.ValueIndex[norm] = append(p.ValueIndex[norm], col)
				}
			}
			for _, tok := range strings.Fields(norm) {
				add(tok, col)
			}
		}
	}
}

// GroundColumns maps free-text query words to concrete column names using
// the semantic value index.
func (p *Profile) GroundColumns(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, `.,!?'"`)
		for _, col := range p.ValueIndex[tok] {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// SchemaSummary renders the dense column description embedded in prompts.
func (p *Profile) SchemaSummary() string {
	var b strings.Builder
	b.WriteString("Columns:\n")
	for _, c := range p.Columns {
		sample := p.samples[c.Name]
		if sample == "" {
			sample = "N/A"
		}
		fmt.Fprintf(&b, "- %s (%s): e.g., '%s'\n", c.Name, c.Kind, sample)
	}
	return b.String()
}
