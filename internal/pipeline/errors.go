package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGenerationFailed wraps any failure to obtain code from the generator,
// including all configured models being exhausted.
var ErrGenerationFailed = errors.New("code generation failed")

// ErrRetryExhausted is returned in the answer when every execution attempt
// failed. Its message is the user-facing exhaustion text.
var ErrRetryExhausted = errors.New(ExhaustedMessage)

// RejectedError carries the reviewer's reasons when code is turned away
// before execution.
type RejectedError struct {
	Reasons []string
}

func (e *RejectedError) Error() string {
	return "The generated code was rejected: " + strings.Join(e.Reasons, "; ")
}

// ExecutionError is one failed sandbox attempt. It is recoverable: the
// coordinator regenerates and retries until the attempt budget runs out.
type ExecutionError struct {
	Attempt int
	Trace   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution attempt %d failed: %s", e.Attempt, e.Trace)
}
