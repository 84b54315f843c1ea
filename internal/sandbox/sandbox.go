// Package sandbox executes generated analysis code inside an embedded
// interpreter. Each session owns one interpreter whose bindings persist
// across executions until the dataset is replaced or the context is reset.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/viz"
)

// denylist is the executor's own pre-check, independent of the safety
// reviewer. Defense in depth: even reviewed code is scanned again here.
var denylist = []string{"os/exec", "exec.Command", "syscall.", "os.Exit", "rm -rf"}

// prelude binds the session's fixed names. Generated code operates on `df`,
// prints through fmt, and assigns `fig` or draws on `plot` for charts.
const prelude = `import (
	"fmt"
	"strings"
	"strconv"
	"math"
	"sort"
	"tabq/data"
	"tabq/viz"
)

var df = data.Frame()
var plot = data.Plot()
var result interface{}
var fig *viz.Figure

var _ = fmt.Sprint
var _ = strings.ToLower
var _ = strconv.Itoa
var _ = math.NaN
var _ = sort.Strings
`

// Outcome is the executor's complete report of one run. Exactly one of the
// success fields or Trace is populated.
type Outcome struct {
	Success bool
	Result  any
	Stdout  string
	Figure  *viz.Artifact
	Trace   string
}

// Context is a session-scoped execution environment: the dataset handle plus
// whatever bindings earlier executions left behind. It is not reset between
// calls unless the caller replaces the dataset or asks for a reset.
type Context struct {
	mu      sync.Mutex
	frame   *dataset.Frame
	canvas  *viz.Canvas
	stdout  *bytes.Buffer
	interp  *interp.Interpreter
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewContext builds a fresh execution context around a loaded frame.
func NewContext(frame *dataset.Frame, timeout time.Duration, log *zap.SugaredLogger) (*Context, error) {
	c := &Context{
		frame:   frame,
		timeout: timeout,
		log:     log,
	}
	if err := c.boot(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) boot() error {
	c.canvas = viz.NewCanvas()
	c.stdout = &bytes.Buffer{}
	// The interpreter's stdout is the capture buffer; yaegi virtualizes the
	// fmt print family onto it, so generated output never reaches the
	// process stdout.
	i := interp.New(interp.Options{Stdout: c.stdout, Stderr: c.stdout})
	if err := i.Use(restrictedSymbols(c.frame, c.canvas)); err != nil {
		return fmt.Errorf("load sandbox symbols: %w", err)
	}
	if _, err := i.Eval(prelude); err != nil {
		return fmt.Errorf("eval prelude: %w", err)
	}
	c.interp = i
	return nil
}

// Reset discards all bindings and rebuilds the interpreter around the same
// dataset. Used when the reset-per-query policy is enabled.
func (c *Context) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boot()
}

// Execute runs one code string and captures its observable output. Any
// failure — denylist hit, compile error, runtime panic, timeout — comes back
// as a failure Outcome with the trace; Execute never propagates an error.
func (c *Context) Execute(ctx context.Context, code string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, term := range denylist {
		if strings.Contains(code, term) {
			return Outcome{Trace: fmt.Sprintf("security violation: forbidden operation %q detected", term)}
		}
	}

	c.stdout.Reset()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var evalErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				evalErr = fmt.Errorf("panic: %v", r)
			}
		}()
		_, evalErr = c.interp.EvalWithContext(ctx, code)
	}()

	if evalErr != nil {
		trace := evalErr.Error()
		if p, ok := evalErr.(interp.Panic); ok {
			trace = fmt.Sprintf("%v\n%s", p.Value, p.Stack)
		}
		if c.log != nil {
			c.log.Debugw("execution failed", "trace", trace)
		}
		return Outcome{Stdout: c.stdout.String(), Trace: trace}
	}

	out := Outcome{
		Success: true,
		Stdout:  c.stdout.String(),
		Result:  c.binding("result"),
		Figure:  c.captureFigure(),
	}
	return out
}

// binding reads a top-level interpreter binding, nil when unreadable.
func (c *Context) binding(name string) any {
	v, err := c.interp.Eval(name)
	if err != nil || !v.IsValid() {
		return nil
	}
	if v.Kind() == 0 || !v.CanInterface() {
		return nil
	}
	out := v.Interface()
	if out == nil {
		return nil
	}
	return out
}

// captureFigure applies the artifact priority: a declared figure exporting
// its structured form wins; otherwise an active imperative plot is rendered
// to an embedded raster and cleared. At most one artifact per execution.
func (c *Context) captureFigure() *viz.Artifact {
	if f, ok := c.binding("fig").(*viz.Figure); ok && f != nil {
		defer c.clearFig()
		if spec, err := f.JSON(); err == nil {
			return &viz.Artifact{Type: "figure_json", Data: spec}
		} else if c.log != nil {
			c.log.Warnw("figure export failed", "error", err)
		}
		return nil
	}
	if f := c.canvas.Active(); f != nil {
		defer c.canvas.Clear()
		if img, err := viz.RenderPNG(f); err == nil {
			return &viz.Artifact{Type: "image_png", Data: img}
		} else if c.log != nil {
			c.log.Warnw("figure render failed", "error", err)
		}
	}
	return nil
}

func (c *Context) clearFig() {
	_, _ = c.interp.Eval("fig = nil")
}
