package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/dataset"
)

var testLog = zap.NewNop().Sugar()

func newTestContext(t *testing.T) *Context {
	t.Helper()
	f := dataset.New("sales.csv",
		[]string{"region", "sales"},
		[][]string{{"North", "100"}, {"South", "200"}, {"North", "150"}})
	c, err := NewContext(f, 5*time.Second, testLog)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return c
}

func TestExecuteCapturesStdout(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `fmt.Println(df.Sum("sales"))`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Stdout != "450\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestPrintfAndSprintfCaptured(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `label := fmt.Sprintf("%s total", "sales")
fmt.Printf("%s: %.0f\n", label, df.Sum("sales"))`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Stdout != "sales total: 450\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestExecuteFilterAndGroup(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `fmt.Println(df.Filter("region", "NORTH").Sum("sales"))`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Stdout != "250\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestResultBinding(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `result = df.NumRows()`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if n, ok := out.Result.(int); !ok || n != 3 {
		t.Errorf("Result = %v (%T)", out.Result, out.Result)
	}
}

func TestBindingsPersistAcrossExecutions(t *testing.T) {
	c := newTestContext(t)
	if out := c.Execute(context.Background(), `threshold := 120.0`); !out.Success {
		t.Fatalf("first: %s", out.Trace)
	}
	out := c.Execute(context.Background(),
		`fmt.Println(df.Where(func(r data.Row) bool { return r.Num("sales") > threshold }).NumRows())`)
	if !out.Success {
		t.Fatalf("second: %s", out.Trace)
	}
	if out.Stdout != "2\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestResetDropsBindings(t *testing.T) {
	c := newTestContext(t)
	if out := c.Execute(context.Background(), `leftover := 1`); !out.Success {
		t.Fatalf("setup: %s", out.Trace)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if out := c.Execute(context.Background(), `fmt.Println(leftover)`); out.Success {
		t.Error("binding survived a reset")
	}
	// the dataset handle is rebound
	if out := c.Execute(context.Background(), `fmt.Println(df.NumRows())`); !out.Success || out.Stdout != "3\n" {
		t.Errorf("df after reset: success=%v stdout=%q", out.Success, out.Stdout)
	}
}

func TestStdoutResetBetweenExecutions(t *testing.T) {
	c := newTestContext(t)
	c.Execute(context.Background(), `fmt.Println("first")`)
	out := c.Execute(context.Background(), `fmt.Println("second")`)
	if out.Stdout != "second\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestDenylistBlocks(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `os.Exit(1)`)
	if out.Success {
		t.Fatal("forbidden code executed")
	}
	if !strings.Contains(out.Trace, "forbidden operation") {
		t.Errorf("Trace = %q", out.Trace)
	}
}

func TestRestrictedImportFails(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), "import \"os\"\nfmt.Println(os.Getpid())")
	if out.Success {
		t.Fatal("os should not be importable inside the sandbox")
	}
}

func TestAllowedStdlibAvailable(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `fmt.Println(strings.ToUpper("ok"), strconv.Itoa(7))`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Stdout != "OK 7\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestCompileErrorIsFailureOutcome(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `nosuchfunc()`)
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Trace == "" {
		t.Error("failure carries no trace")
	}
}

func TestRuntimePanicIsFailureOutcome(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `vals := df.Numbers("sales")
fmt.Println(vals[99])`)
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Trace == "" {
		t.Error("failure carries no trace")
	}
	// the session survives a panic
	if out := c.Execute(context.Background(), `fmt.Println("alive")`); !out.Success {
		t.Errorf("session dead after panic: %s", out.Trace)
	}
}

func TestTimeout(t *testing.T) {
	f := dataset.New("t", []string{"v"}, [][]string{{"1"}})
	c, err := NewContext(f, 200*time.Millisecond, testLog)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	out := c.Execute(context.Background(), `for { }`)
	if out.Success {
		t.Fatal("infinite loop reported success")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not fire promptly")
	}
}

func TestDeclaredFigureCaptured(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `fig = viz.NewFigure(viz.KindBar, "sales by region")
fig.Add("north", 250)
fig.Add("south", 200)
fmt.Println("plotted")`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Figure == nil || out.Figure.Type != "figure_json" {
		t.Fatalf("Figure = %+v", out.Figure)
	}
	if !strings.Contains(out.Figure.Data, `"kind":"bar"`) {
		t.Errorf("Data = %s", out.Figure.Data)
	}
	// fig is cleared after capture
	if out := c.Execute(context.Background(), `fmt.Println("next")`); out.Figure != nil {
		t.Error("figure leaked into the next execution")
	}
}

func TestCanvasPlotRastered(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `plot.Bar("t", []string{"a", "b"}, []float64{1, 2})
fmt.Println("plotted")`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Figure == nil || out.Figure.Type != "image_png" {
		t.Fatalf("Figure = %+v", out.Figure)
	}
	if out := c.Execute(context.Background(), `fmt.Println("next")`); out.Figure != nil {
		t.Error("canvas not cleared after capture")
	}
}

func TestDeclaredFigureWinsOverCanvas(t *testing.T) {
	c := newTestContext(t)
	out := c.Execute(context.Background(), `plot.Bar("imperative", []string{"a"}, []float64{1})
fig = viz.NewFigure(viz.KindLine, "declared")
fig.Add("a", 1)
fmt.Println("ok")`)
	if !out.Success {
		t.Fatalf("failed: %s", out.Trace)
	}
	if out.Figure == nil || out.Figure.Type != "figure_json" {
		t.Errorf("Figure = %+v, want the declared figure", out.Figure)
	}
}
