// Package generate turns natural-language questions about a loaded dataset
// into runnable analysis code, using a local model endpoint with ordered
// fallbacks and optional hints recalled from past successful analyses.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/ai"
	"github.com/tabq-dev/tabq/internal/memory"
	"github.com/tabq-dev/tabq/internal/profile"
)

// LLM is the completion surface the generator needs from the model client.
type LLM interface {
	Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)
}

// Options configure a Generator.
type Options struct {
	// Model is tried first; FallbackModels follow in order, one attempt each.
	Model          string
	FallbackModels []string
	Temperature    float64
	MaxTokens      int
	// Timeout bounds each individual model call.
	Timeout time.Duration
	// HintThreshold is the maximum recall distance at which a remembered
	// solution is embedded into the prompt.
	HintThreshold float64
}

// Generator builds prompts and drives the model until one of the configured
// models returns code.
type Generator struct {
	llm  LLM
	mem  *memory.Store
	opts Options
	log  *zap.SugaredLogger
}

// New returns a Generator. mem may be nil when memory is disabled.
func New(llm LLM, mem *memory.Store, opts Options, log *zap.SugaredLogger) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.HintThreshold <= 0 {
		opts.HintThreshold = 0.3
	}
	return &Generator{llm: llm, mem: mem, opts: opts, log: log}
}

// Generate produces analysis code for query against the profiled dataset.
// errorContext, when non-empty, is the failure trace of a previous attempt
// and switches the prompt into repair mode.
func (g *Generator) Generate(ctx context.Context, query string, prof *profile.Profile, errorContext string) (string, error) {
	prompt := g.buildPrompt(ctx, query, prof, errorContext)

	models := append([]string{g.opts.Model}, g.opts.FallbackModels...)
	var lastErr error
	for _, model := range models {
		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		resp, err := g.llm.Generate(callCtx, ai.GenerateRequest{
			Model:       model,
			Prompt:      prompt,
			Temperature: g.opts.Temperature,
			MaxTokens:   g.opts.MaxTokens,
		})
		cancel()
		if err != nil {
			g.log.Warnw("model call failed", "model", model, "error", err)
			lastErr = err
			continue
		}
		code := StripFences(resp.Text)
		if strings.TrimSpace(code) == "" {
			g.log.Warnw("model returned empty code", "model", model)
			lastErr = fmt.Errorf("model %s returned no code", model)
			continue
		}
		g.log.Debugw("code generated", "model", model, "bytes", len(code))
		return code, nil
	}
	return "", fmt.Errorf("all models failed: %w", lastErr)
}

func (g *Generator) buildPrompt(ctx context.Context, query string, prof *profile.Profile, errorContext string) string {
	var b strings.Builder

	if wantsVisualization(query) {
		b.WriteString(visualizationHeader)
	} else {
		b.WriteString(standardHeader)
	}

	fmt.Fprintf(&b, "\nUser Query: %q\n\n", query)
	b.WriteString("Dataset: ")
	b.WriteString(prof.DatasetName)
	fmt.Fprintf(&b, " (%d rows)\n", prof.RowCount)
	b.WriteString(prof.SchemaSummary())

	if cols := prof.GroundColumns(query); len(cols) > 0 {
		b.WriteString("\nColumns most relevant to the query: ")
		b.WriteString(strings.Join(cols, ", "))
		b.WriteString("\n")
	}

	if hint := g.recallHint(ctx, query); hint != "" {
		b.WriteString(hint)
	}

	b.WriteString(apiReference)
	b.WriteString(rules)

	if errorContext != "" {
		b.WriteString("\nYour previous code failed with this error:\n")
		b.WriteString(errorContext)
		b.WriteString("\nWrite a corrected version. Respond with code only.\n")
	}
	return b.String()
}

// recallHint fetches the single nearest remembered solution and embeds it
// only when it is close enough to be trustworthy.
func (g *Generator) recallHint(ctx context.Context, query string) string {
	if g.mem == nil || !g.mem.Enabled() {
		return ""
	}
	recs := g.mem.Recall(ctx, query, 1)
	if len(recs) == 0 {
		return ""
	}
	r := recs[0]
	if r.Distance >= g.opts.HintThreshold {
		g.log.Debugw("nearest memory too distant", "distance", r.Distance)
		return ""
	}
	g.log.Infow("embedding memory hint", "intent", r.Intent, "distance", r.Distance)
	var b strings.Builder
	fmt.Fprintf(&b, "\nA similar question (%q) was solved before with this code:\n", r.Intent)
	b.WriteString(r.Code)
	b.WriteString("\nAdapt it to the current query if it helps.\n")
	return b.String()
}

func wantsVisualization(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range []string{"plot", "chart", "graph", "visuali", "draw", "histogram"} {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

const standardHeader = `You are an expert Go data analyst. A dataset is already bound to the variable df.
Write a short Go snippet that answers the user's question.`

const visualizationHeader = `You are an expert Go data analyst. A dataset is already bound to the variable df
and a plotting surface to the variable plot.
Write a short Go snippet that answers the user's question with a figure.
Assign the figure to the predeclared variable fig, or draw on plot.
Also print a one-line textual summary of what the figure shows.`

const apiReference = `
Available on df:
  df.NumRows() int
  df.ColumnNames() []string
  df.Col(name) []string            // raw cell values
  df.Numbers(name) []float64       // parsed values, NaN when unparseable
  df.Filter(col, value) *data.Frame   // case-insensitive equality
  df.Where(func(r data.Row) bool) *data.Frame
  df.Head(n) / df.SortBy(col, desc) *data.Frame
  df.Unique(col) []string
  df.Sum(col) / df.Mean(col) / df.Min(col) / df.Max(col) float64
  df.Count(col) int
  df.GroupSum(groupCol, valueCol) map[string]float64
  df.GroupCount(groupCol) map[string]int
Inside Where, r.Get(col) string and r.Num(col) float64 read the current row.
Figures: fig = viz.NewFigure(viz.KindBar, "title"); fig.Add(label, value)
or plot.Bar("title", labels, values) (also Line, Scatter).
`

const rules = `
Rules:
1. Use the df variable directly; it is already loaded.
2. PRINT the final answer with fmt.Println so the user sees it.
3. Match string values case-insensitively (df.Filter already does).
4. Only reference columns that exist in the schema above.
5. Respond with Go code only. No markdown fences, no commentary.
`

// StripFences removes a single wrapping markdown code fence, with or without
// a language tag, from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		// Drop a language tag like "go" on the fence line.
		if len(first) <= 10 && !strings.ContainsAny(first, " \t") {
			s = s[i+1:]
		}
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
