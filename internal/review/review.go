// Package review screens generated code before it reaches the executor.
// The scan is pure string inspection: a denylist of forbidden operations and
// a minimal liveness check. It is deliberately synchronous and side-effect
// free so a rejection can short-circuit the pipeline without cost.
package review

import (
	"fmt"
	"strings"
)

// forbidden lists substrings whose presence rejects the code outright:
// process spawning, shell execution, and process-exit calls.
var forbidden = []string{
	"os/exec",
	"exec.Command",
	"syscall.",
	"os.Exit",
	"os.RemoveAll",
	"rm -rf",
}

// livenessPatterns mark code that produces observable output: a print call
// or a figure assignment/plot call.
var livenessPatterns = []string{
	"fmt.Print",
	"println(",
	"fig =",
	"fig=",
	"fig :=",
	"plot.",
}

// Result is the reviewer's verdict. A rejection carries every triggered
// reason, not just the first.
type Result struct {
	Approved bool
	Reasons  []string
}

// Review scans a code string and approves or rejects it. Rejection is
// terminal for the query: the coordinator neither regenerates nor executes.
func Review(code string) Result {
	var reasons []string

	for _, term := range forbidden {
		if strings.Contains(code, term) {
			reasons = append(reasons, fmt.Sprintf("security risk: found forbidden term %q", term))
		}
	}

	if !hasObservableOutput(code) {
		reasons = append(reasons, "logic error: code does not print output or produce a figure")
	}

	return Result{Approved: len(reasons) == 0, Reasons: reasons}
}

func hasObservableOutput(code string) bool {
	for _, p := range livenessPatterns {
		if strings.Contains(code, p) {
			return true
		}
	}
	return false
}
