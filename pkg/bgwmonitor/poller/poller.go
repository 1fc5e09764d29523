// Package poller runs the per-gateway polling loop: one long-lived
// goroutine per gateway under a shared concurrency permit, producing
// query results onto a fan-in channel. Grounded on async_loop.py's
// query/schedule_queries, restructured along the teacher's
// poller/scheduler split (pool.go/worker.go/scheduler.go) into explicit
// goroutines instead of asyncio tasks.
package poller

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/runner"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
)

// Result is one completed poll, ready for the Result Processor.
type Result struct {
	Gateway   *models.BGW
	LanIP     string
	Stdout    string
	ErrorKind string
}

// Semaphore is the shared concurrency permit across every gateway's
// poller, sized by config.MaxPolling (default 20, spec.md §4.3).
type Semaphore chan struct{}

// NewSemaphore creates a semaphore with cap permits.
func NewSemaphore(cap int) Semaphore {
	if cap <= 0 {
		cap = 20
	}
	return make(Semaphore, cap)
}

func (s Semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Semaphore) release() { <-s }

// Interpreter is the external program the Process Runner hands the
// rendered script to — "expect" by default (spec.md §6).
const Interpreter = "expect"

// CommandRunner executes the rendered script and reports the outcome.
// Abstracted so tests can substitute a fake process without shelling out
// to a real expect interpreter; ExecRunner is the production
// implementation, backed by the runner package.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error)
}

// ExecRunner is the CommandRunner that actually launches a child process,
// via the Process Runner (spec.md §4.1).
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error) {
	return runner.Run(ctx, timeout, label, name, args...)
}

// Query performs one poll cycle against gw: acquire a permit, render the
// script, run it through the interpreter under timeout, release the
// permit. It is the unit shared by both discovery (single call) and the
// steady-state loop (called repeatedly). Returns ctx.Err() if ctx itself
// was canceled, never for an external failure (those surface in Result).
func Query(ctx context.Context, sem Semaphore, b *script.Builder, tmpl script.Template, cr CommandRunner, timeout time.Duration, gw *models.BGW) (Result, error) {
	if err := sem.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer sem.release()

	out := Result{Gateway: gw, LanIP: gw.LanIP}

	text, err := b.Build(gw, tmpl)
	if err != nil {
		out.ErrorKind = "ScriptBuildError"
		return out, nil
	}

	res, runErr := cr.Run(ctx, timeout, gw.LanIP, Interpreter, "-c", text)
	if runErr != nil {
		return out, runErr
	}
	out.Stdout = res.Stdout
	out.ErrorKind = res.ErrorKind
	return out, nil
}

// runningMean tracks an arithmetic mean incrementally, used for the
// diagnostic "average sleep duration" async_loop.py's query keeps per
// gateway.
type runningMean struct {
	sum   float64
	count int
}

func (m *runningMean) add(v float64) float64 {
	m.sum += v
	m.count++
	return m.sum / float64(m.count)
}

// Loop drives the steady-state per-gateway polling cycle (spec.md §4.3):
// acquire/run/release, push the result onto results, then sleep so the
// cycle length matches intervalSecs net of elapsed time (never negative).
// Returns when ctx is canceled.
func Loop(ctx context.Context, sem Semaphore, b *script.Builder, tmpl script.Template, cr CommandRunner, timeout time.Duration, intervalSecs int, gw *models.BGW, results chan<- Result, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	interval := time.Duration(intervalSecs) * time.Second
	var avg runningMean

	for {
		start := time.Now()

		res, err := Query(ctx, sem, b, tmpl, cr, timeout, gw)
		if err != nil {
			return
		}

		if res.ErrorKind == "Timeout" {
			logger.Warn("poll timed out", "lan_ip", gw.LanIP)
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}

		elapsed := time.Since(start)
		sleepFor := interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}
		avgSecs := avg.add(sleepFor.Seconds())
		logger.Debug("poller sleeping", "lan_ip", gw.LanIP, "sleep_secs", sleepFor.Seconds(), "avg_sleep_secs", round1(avgSecs))

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return
		}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
