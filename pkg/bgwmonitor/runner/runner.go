// Package runner executes external commands under a deadline and reports a
// uniform result shape, never panicking or propagating an exec error across
// its boundary. Grounded on utils.py's CommandResult/_run_cmd/run_cmd:
// kill-on-cancel, UTF-8 decoding with replacement, and an error_kind
// sentinel ("Timeout" on deadline, the failure class otherwise) instead of
// a raised exception.
package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
	"unicode/utf8"
)

// Result is the outcome of one external command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// ErrorKind is empty on a clean run (exit code may still be nonzero —
	// that's a legitimate external failure, not a runner-level error).
	// "Timeout" on deadline expiry; "CommandNotFound" when the executable
	// could not be resolved (an *exec.Error); "RunnerError" for any other
	// launch failure. These short labels stand in for Python's use of the
	// raised exception's class name.
	ErrorKind string
	Label     string
}

// Run executes name with args, enforcing timeout as a hard deadline: on
// expiry the child is killed and Result.ErrorKind is set to "Timeout".
// If ctx itself is canceled (not merely the per-call deadline), Run
// terminates the child and returns ctx.Err() so the caller can propagate
// the cancellation upward rather than treat it as an external failure
// (spec.md §4.1/§4.3: cancellation propagates, a deadline reports
// "Timeout"). Any other failure mode surfaces through Result.ErrorKind;
// Run never panics or returns an error for an ordinary nonzero exit.
func Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: toValidUTF8(stdout.Bytes()),
		Stderr: toValidUTF8(stderr.Bytes()),
		Label:  label,
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if cctx.Err() == context.DeadlineExceeded {
		res.ErrorKind = "Timeout"
		return res, nil
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ErrorKind = classifyLaunchError(err)
	return res, nil
}

// classifyLaunchError returns a short label for an exec failure that never
// reached a child process (binary missing, permission denied, etc.),
// standing in for Python's exception-class-name convention.
func classifyLaunchError(err error) string {
	var perr *exec.Error
	if errors.As(err, &perr) {
		return "CommandNotFound"
	}
	return "RunnerError"
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string(bytes.ToValidUTF8(b, []byte("�")))
}

// LogResult is a convenience used by callers that want the standard
// failure log line for a Result whose ErrorKind is set.
func LogResult(logger *slog.Logger, res Result) {
	if res.ErrorKind == "" {
		return
	}
	logger.Warn("external command failed", "label", res.Label, "error_kind", res.ErrorKind)
}
