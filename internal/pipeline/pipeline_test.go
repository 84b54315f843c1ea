package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/profile"
	"github.com/tabq-dev/tabq/internal/sandbox"
	"github.com/tabq-dev/tabq/internal/viz"
)

var testLog = zap.NewNop().Sugar()

type fakeGen struct {
	codes   []string // returned in order; last repeats
	err     error
	calls   int
	errCtxs []string
}

func (g *fakeGen) Generate(ctx context.Context, query string, prof *profile.Profile, errorContext string) (string, error) {
	g.errCtxs = append(g.errCtxs, errorContext)
	if g.err != nil {
		return "", g.err
	}
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i], nil
}

type fakeExec struct {
	outcomes []sandbox.Outcome // returned in order; last repeats
	calls    int
	resets   int
}

func (e *fakeExec) Execute(ctx context.Context, code string) sandbox.Outcome {
	i := e.calls
	if i >= len(e.outcomes) {
		i = len(e.outcomes) - 1
	}
	e.calls++
	return e.outcomes[i]
}

func (e *fakeExec) Reset() error {
	e.resets++
	return nil
}

type fakeMem struct {
	enabled bool
	saves   int
	intents []string
	meta    []map[string]string
}

func (m *fakeMem) Enabled() bool { return m.enabled }

func (m *fakeMem) Save(ctx context.Context, intent, code string, metadata map[string]string) error {
	m.saves++
	m.intents = append(m.intents, intent)
	m.meta = append(m.meta, metadata)
	return nil
}

func testProfile() *profile.Profile {
	f := dataset.New("sales.csv",
		[]string{"region", "sales"},
		[][]string{{"North", "100"}, {"South", "200"}, {"North", "150"}})
	return profile.Build(f, testLog)
}

const okCode = `fmt.Println(df.Sum("sales"))`

func newRunner(gen Generator, exec Executor, mem Memory) *Runner {
	return New(gen, exec, mem, testProfile(), false, testLog)
}

func TestSuccessFirstAttempt(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: "250\n"}}}
	mem := &fakeMem{enabled: true}

	ans, err := newRunner(gen, exec, mem).Run(context.Background(), "total sales for the North region")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.State != StateSucceeded || ans.Confidence != 1.0 {
		t.Errorf("state/confidence = %s/%v", ans.State, ans.Confidence)
	}
	if ans.Text != "250" {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.Attempts != 1 || exec.calls != 1 || gen.calls != 1 {
		t.Errorf("attempts = %d, exec = %d, gen = %d", ans.Attempts, exec.calls, gen.calls)
	}
	if mem.saves != 1 {
		t.Errorf("memory saves = %d, want 1", mem.saves)
	}
	if mem.intents[0] != "total sales for the North region" {
		t.Errorf("saved intent = %q", mem.intents[0])
	}
	if mem.meta[0]["dataset"] != "sales.csv" || mem.meta[0]["attempts"] != "1" {
		t.Errorf("saved metadata = %v", mem.meta[0])
	}
}

func TestRejectionConsumesNoAttempts(t *testing.T) {
	gen := &fakeGen{codes: []string{`exec.Command("rm")` + "\nfmt.Println(1)"}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true}}}
	mem := &fakeMem{enabled: true}

	ans, err := newRunner(gen, exec, mem).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.State != StateRejected {
		t.Fatalf("state = %s", ans.State)
	}
	if ans.Confidence != 0.0 {
		t.Errorf("confidence = %v", ans.Confidence)
	}
	if !strings.Contains(ans.Text, "exec.Command") {
		t.Errorf("Text should name the violation, got %q", ans.Text)
	}
	if exec.calls != 0 {
		t.Errorf("rejected code must never execute, exec calls = %d", exec.calls)
	}
	if gen.calls != 1 {
		t.Errorf("no regeneration after rejection, gen calls = %d", gen.calls)
	}
	if mem.saves != 0 {
		t.Errorf("memory saves = %d", mem.saves)
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	// The regenerated code is deliberately one the reviewer would reject:
	// retries bypass review, so it must still run.
	gen := &fakeGen{codes: []string{okCode, `result = df.Sum("sales")`}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{
		{Trace: "undefined: df.Total"},
		{Success: true, Result: 450.0},
	}}
	mem := &fakeMem{enabled: true}

	ans, err := newRunner(gen, exec, mem).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.State != StateSucceeded || ans.Attempts != 2 {
		t.Fatalf("state/attempts = %s/%d", ans.State, ans.Attempts)
	}
	if gen.calls != 2 {
		t.Errorf("gen calls = %d, want 2", gen.calls)
	}
	if gen.errCtxs[1] != "undefined: df.Total" {
		t.Errorf("regeneration error context = %q", gen.errCtxs[1])
	}
	if ans.Text != "450" {
		t.Errorf("Text = %q (result binding fallback)", ans.Text)
	}
	if mem.saves != 1 {
		t.Errorf("memory saves = %d, want exactly 1", mem.saves)
	}
}

func TestExhaustedAfterThreeAttempts(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Trace: "boom"}}}
	mem := &fakeMem{enabled: true}

	ans, err := newRunner(gen, exec, mem).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.State != StateExhausted {
		t.Fatalf("state = %s", ans.State)
	}
	if ans.Text != ExhaustedMessage {
		t.Errorf("Text = %q, want %q", ans.Text, ExhaustedMessage)
	}
	if ans.Confidence != 0.0 {
		t.Errorf("confidence = %v", ans.Confidence)
	}
	if exec.calls != 3 || ans.Attempts != 3 {
		t.Errorf("exec calls = %d, attempts = %d", exec.calls, ans.Attempts)
	}
	// initial generation plus two regenerations; no fourth
	if gen.calls != 3 {
		t.Errorf("gen calls = %d", gen.calls)
	}
	if mem.saves != 0 {
		t.Errorf("failures must not be remembered, saves = %d", mem.saves)
	}
}

func TestNoOutputMessage(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true}}}

	ans, err := newRunner(gen, exec, &fakeMem{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.Text != "Analysis completed successfully, but no output was generated." {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.Confidence != 1.0 {
		t.Errorf("confidence = %v", ans.Confidence)
	}
}

func TestLongOutputTruncated(t *testing.T) {
	long := strings.Repeat("x", 1500)
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: long}}}

	ans, err := newRunner(gen, exec, &fakeMem{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(ans.Text, "Analysis Result:\n") {
		t.Errorf("truncated text lacks prefix: %q", ans.Text[:40])
	}
	if !strings.HasSuffix(ans.Text, "...") {
		t.Error("truncated text lacks ellipsis")
	}
	if len(ans.Text) > len("Analysis Result:\n")+1000+3 {
		t.Errorf("len = %d", len(ans.Text))
	}
}

func TestFigurePassedThrough(t *testing.T) {
	art := &viz.Artifact{Type: "figure_json", Data: `{"kind":"bar"}`}
	gen := &fakeGen{codes: []string{`plot.Bar("t", nil, nil)` + "\nfmt.Println(\"done\")"}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: "done\n", Figure: art}}}

	ans, err := newRunner(gen, exec, &fakeMem{}).Run(context.Background(), "plot it")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ans.Figure != art {
		t.Errorf("Figure = %v", ans.Figure)
	}
}

func TestResetPerQuery(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: "1\n"}}}
	r := New(gen, exec, &fakeMem{}, testProfile(), true, testLog)

	if _, err := r.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := r.Run(context.Background(), "q2"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.resets != 2 {
		t.Errorf("resets = %d, want one per query", exec.resets)
	}
}

func TestGeneratorErrorPropagates(t *testing.T) {
	gen := &fakeGen{err: fmt.Errorf("all models failed")}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true}}}
	_, err := newRunner(gen, exec, &fakeMem{}).Run(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
	if exec.calls != 0 {
		t.Errorf("exec calls = %d", exec.calls)
	}
}

func TestAnswerElapsedSeconds(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: "1\n"}}}
	ans, err := newRunner(gen, exec, &fakeMem{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if ans.ElapsedSec < 0 || ans.ElapsedSec != ans.Elapsed.Seconds() {
		t.Errorf("ElapsedSec = %v, Elapsed = %v", ans.ElapsedSec, ans.Elapsed)
	}
}

func TestDisabledMemoryNotSaved(t *testing.T) {
	gen := &fakeGen{codes: []string{okCode}}
	exec := &fakeExec{outcomes: []sandbox.Outcome{{Success: true, Stdout: "1\n"}}}
	mem := &fakeMem{enabled: false}
	if _, err := newRunner(gen, exec, mem).Run(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if mem.saves != 0 {
		t.Errorf("saves = %d", mem.saves)
	}
}
