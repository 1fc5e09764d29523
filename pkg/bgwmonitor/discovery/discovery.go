package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/poller"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
)

// Progress reports discovery completion counts as they accumulate, for a
// caller-supplied callback (spec.md §4.4's "(ok, err, total)" progress
// contract).
type Progress struct {
	OK, Err, Total int
}

// Run enumerates candidates, polls every one exactly once concurrently
// (bounded by sem, shared with the steady-state pollers), and returns the
// results as they complete — first-complete-first-processed, not in
// enumeration order. The progress callback, if non-nil, is invoked after
// every completed poll with the running (ok, err, total) tally.
func Run(ctx context.Context, enum Enumerator, sem poller.Semaphore, b *script.Builder, tmpl script.Template, cr poller.CommandRunner, timeout time.Duration, pollingSecs int, onProgress func(Progress), logger *slog.Logger) ([]poller.Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	candidates, err := enum.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	total := len(candidates)
	results := make([]poller.Result, 0, total)
	resultsCh := make(chan poller.Result, total)

	var wg sync.WaitGroup
	for ip, proto := range candidates {
		gw := models.NewBGW(ip, proto, pollingSecs)
		wg.Add(1)
		go func(gw *models.BGW) {
			defer wg.Done()
			res, qerr := poller.Query(ctx, sem, b, tmpl, cr, timeout, gw)
			if qerr != nil {
				logger.Debug("discovery poll canceled", "lan_ip", gw.LanIP, "err", qerr)
				return
			}
			resultsCh <- res
		}(gw)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var progress Progress
	progress.Total = total
	for res := range resultsCh {
		if res.ErrorKind == "" {
			progress.OK++
		} else {
			progress.Err++
		}
		results = append(results, res)
		if onProgress != nil {
			onProgress(progress)
		}
	}

	return results, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
