package upload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/runner"
)

// Default timeouts for the two enrichment commands (spec.md §4.9 "default
// timeout", not otherwise specified).
const DefaultEnrichTimeout = 30 * time.Second

// CommandRunner executes the enrichment commands. Abstracted the same way
// as poller.CommandRunner so tests don't need real capinfos/tshark
// binaries on PATH.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error)
}

// ExecRunner is the production CommandRunner, backed by the Process Runner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, timeout time.Duration, label, name string, args ...string) (runner.Result, error) {
	return runner.Run(ctx, timeout, label, name, args...)
}

// Processor consumes uploaded-file metadata and enriches each with
// capinfos/RTP-stream-analyzer output before storing a Capture record.
// Grounded on main.py's commented Capture(...) example and capture.py's
// field set; the enrichment commands themselves are named directly in
// spec.md §4.9.
type Processor struct {
	Runner        CommandRunner
	UploadDir     string
	GWs           *models.OrderedStore[string, string]
	PCAPs         *models.OrderedStore[string, models.Capture]
	EnrichTimeout time.Duration
	OnChange      func()
	Logger        *slog.Logger
}

// Process runs capinfos/tshark against the uploaded file (if it still
// exists on disk), resolves its gw_number from GWs, and stores the
// resulting Capture record (spec.md §4.9).
func (p *Processor) Process(ctx context.Context, item Item) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	timeout := p.EnrichTimeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}

	path := filepath.Join(p.UploadDir, item.Filename)
	capture := models.Capture{
		RemoteIP:          item.RemoteIP,
		Filename:          item.Filename,
		FileSize:          item.FileSize,
		ReceivedTimestamp: item.ReceivedTimestamp,
		GWNumber:          "NA",
	}

	if gwNumber, ok := p.GWs.Get(item.RemoteIP); ok && gwNumber != "" {
		capture.GWNumber = gwNumber
	}

	cr := p.Runner
	if cr == nil {
		cr = ExecRunner{}
	}

	if _, err := os.Stat(path); err == nil {
		if res, rerr := cr.Run(ctx, timeout, item.Filename, "capinfos", path); rerr == nil && res.ExitCode == 0 {
			capture.CapinfosRaw = res.Stdout
		} else if rerr != nil {
			logger.Warn("upload processor: capinfos canceled", "filename", item.Filename, "err", rerr)
		}

		if res, rerr := cr.Run(ctx, timeout, item.Filename, "tshark",
			"-n", "-q", "-o", "rtp.heuristic_rtp:TRUE", "-z", "rtp,streams", "-r", path); rerr == nil && res.ExitCode == 0 {
			capture.RTPInfoRaw = res.Stdout
		} else if rerr != nil {
			logger.Warn("upload processor: tshark canceled", "filename", item.Filename, "err", rerr)
		}
	} else {
		logger.Warn("upload processor: file missing, storing bare metadata", "filename", item.Filename)
	}

	p.PCAPs.Put(item.Filename, capture)
	logger.Info("upload processor: stored capture", "filename", item.Filename, "gw_number", capture.GWNumber)

	if p.OnChange != nil {
		p.OnChange()
	}
}

// Run drains items from ch, calling Process for each, until ch is closed or
// ctx is canceled.
func (p *Processor) Run(ctx context.Context, ch <-chan Item) {
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return
			}
			p.Process(ctx, item)
		case <-ctx.Done():
			return
		}
	}
}
