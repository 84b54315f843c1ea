// Package pipeline coordinates a single question through code generation,
// safety review, sandboxed execution, and bounded retries, persisting
// successful solutions to memory.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/profile"
	"github.com/tabq-dev/tabq/internal/review"
	"github.com/tabq-dev/tabq/internal/sandbox"
	"github.com/tabq-dev/tabq/internal/viz"
)

// State names a stage of the run. Runs always end in one of the terminal
// states Succeeded, Exhausted, or Rejected.
type State string

const (
	StateGenerating State = "generating"
	StateReviewing  State = "reviewing"
	StateExecuting  State = "executing"
	StateRetrying   State = "retrying"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
	StateRejected   State = "rejected"
)

// MaxAttempts is the number of execution attempts before giving up.
// Rejection by review consumes none of them.
const MaxAttempts = 3

// ExhaustedMessage is the answer text reported when every attempt failed.
const ExhaustedMessage = "Execution failed after 3 attempts."

const maxAnswerLen = 1000

// Generator produces analysis code for a query; errorContext carries the
// failure trace of the prior attempt when regenerating.
type Generator interface {
	Generate(ctx context.Context, query string, prof *profile.Profile, errorContext string) (string, error)
}

// Executor runs reviewed code in the session sandbox.
type Executor interface {
	Execute(ctx context.Context, code string) sandbox.Outcome
	Reset() error
}

// Memory persists solved queries. Implementations must tolerate being
// disabled; Save is only called after a successful execution.
type Memory interface {
	Save(ctx context.Context, intent, code string, metadata map[string]string) error
	Enabled() bool
}

// Answer is the final result of running a query.
type Answer struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	State      State         `json:"state"`
	Code       string        `json:"code,omitempty"`
	Figure     *viz.Artifact `json:"figure,omitempty"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"-"`
	ElapsedSec float64       `json:"elapsed_sec"`
}

func finish(a *Answer, start time.Time) *Answer {
	a.Elapsed = time.Since(start)
	a.ElapsedSec = a.Elapsed.Seconds()
	return a
}

// Runner owns one dataset session's pipeline.
type Runner struct {
	gen      Generator
	exec     Executor
	mem      Memory
	prof     *profile.Profile
	resetPer bool
	log      *zap.SugaredLogger
}

// New builds a Runner. mem may be nil when memory is disabled.
func New(gen Generator, exec Executor, mem Memory, prof *profile.Profile, resetPerQuery bool, log *zap.SugaredLogger) *Runner {
	return &Runner{gen: gen, exec: exec, mem: mem, prof: prof, resetPer: resetPerQuery, log: log}
}

// Run drives query to a terminal state. Review happens exactly once, before
// the first execution; regenerated code after a runtime failure goes straight
// back to execution.
func (r *Runner) Run(ctx context.Context, query string) (*Answer, error) {
	start := time.Now()

	if r.resetPer {
		if err := r.exec.Reset(); err != nil {
			return nil, fmt.Errorf("reset sandbox: %w", err)
		}
	}

	r.transition(StateGenerating, 0)
	code, err := r.gen.Generate(ctx, query, r.prof, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	r.transition(StateReviewing, 0)
	verdict := review.Review(code)
	if !verdict.Approved {
		rej := &RejectedError{Reasons: verdict.Reasons}
		r.log.Warnw("code rejected", "reasons", verdict.Reasons)
		return finish(&Answer{
			Text:       rej.Error(),
			Confidence: 0.0,
			State:      StateRejected,
			Code:       code,
		}, start), nil
	}

	var out sandbox.Outcome
	attempts := 0
	for attempts < MaxAttempts {
		attempts++
		r.transition(StateExecuting, attempts)
		out = r.exec.Execute(ctx, code)
		if out.Success {
			break
		}
		execErr := &ExecutionError{Attempt: attempts, Trace: out.Trace}
		r.log.Warnw("execution failed", "error", execErr)
		if attempts == MaxAttempts {
			break
		}
		r.transition(StateRetrying, attempts)
		code, err = r.gen.Generate(ctx, query, r.prof, out.Trace)
		if err != nil {
			return nil, fmt.Errorf("%w: regenerating after attempt %d: %v", ErrGenerationFailed, attempts, err)
		}
	}

	if !out.Success {
		r.transition(StateExhausted, attempts)
		return finish(&Answer{
			Text:       ErrRetryExhausted.Error(),
			Confidence: 0.0,
			State:      StateExhausted,
			Code:       code,
			Attempts:   attempts,
		}, start), nil
	}

	r.transition(StateSucceeded, attempts)
	if r.mem != nil && r.mem.Enabled() {
		meta := map[string]string{
			"dataset":  r.prof.DatasetName,
			"attempts": fmt.Sprintf("%d", attempts),
		}
		if err := r.mem.Save(ctx, query, code, meta); err != nil {
			r.log.Warnw("memory save failed", "error", err)
		}
	}

	return finish(&Answer{
		Text:       synthesize(out),
		Confidence: 1.0,
		State:      StateSucceeded,
		Code:       code,
		Figure:     out.Figure,
		Attempts:   attempts,
	}, start), nil
}

func (r *Runner) transition(s State, attempt int) {
	r.log.Infow("pipeline", "state", string(s), "attempt", attempt)
}

// synthesize turns a successful outcome into the answer text: captured
// stdout first, the result binding as fallback, then a stock notice.
func synthesize(out sandbox.Outcome) string {
	text := strings.TrimSpace(out.Stdout)
	if text == "" && out.Result != nil {
		text = strings.TrimSpace(fmt.Sprint(out.Result))
	}
	if text == "" {
		if out.Figure != nil {
			return "Analysis produced a figure."
		}
		return "Analysis completed successfully, but no output was generated."
	}
	if len(text) > maxAnswerLen {
		text = "Analysis Result:\n" + text[:maxAnswerLen] + "..."
	}
	return text
}
