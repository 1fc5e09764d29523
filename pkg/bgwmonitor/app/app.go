// Package app wires the gateway-monitoring pipeline together and manages
// its lifecycle (spec.md §4.10, the Engine Lifecycle).
//
// Discovery path (one-shot):
//
//	Enumerator → [discovery.Run fan-out/fan-in] → Result Processor → GWs/BGWs
//
// Polling path (steady-state, started separately):
//
//	poller.Loop (one per gateway) → [resultsCh] → Result Processor → BGWs/RTPs
//	Upload Server → [uploadItemsCh] → Upload Processor → PCAPs
//
// Both paths write through the same Result Processor / Upload Processor so
// there is exactly one writer goroutine per store, matching spec.md §5's
// single-writer rule.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/config"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/discovery"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/metrics"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/poller"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/processor"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/script"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/upload"
)

// Config configures an App. Settings holds the resolved spec.md §6
// configuration; Template is the opaque on-wire CLI dialog program handed
// to every poll; Enumerator and Runner default to their production
// implementations when nil and exist as fields so tests can substitute
// fakes without touching package internals.
type Config struct {
	Settings   config.Config
	Template   script.Template
	Enumerator discovery.Enumerator
	Runner     poller.CommandRunner
	Logger     *slog.Logger
	OnChange   func()
}

// App owns the four stores and every long-lived task that mutates them. Call
// DiscoveryStart, then PollingStart; PollingStop/DiscoveryStop and Stop are
// safe to call multiple times.
type App struct {
	cfg      config.Config
	tmpl     script.Template
	enum     discovery.Enumerator
	runner   poller.CommandRunner
	logger   *slog.Logger
	onChange func()

	GWs   *models.OrderedStore[string, string]
	BGWs  *models.OrderedStore[string, *models.BGW]
	RTPs  *models.OrderedStore[string, models.RTPDetails]
	PCAPs *models.OrderedStore[string, models.Capture]

	builder *script.Builder
	sem     poller.Semaphore
	metricsSrv *metrics.Server

	mu              sync.Mutex
	polling         bool
	discoveryCancel context.CancelFunc
	pollCancel      context.CancelFunc
	pollersWG       sync.WaitGroup // tracks only the per-gateway poller.Loop goroutines
	wg              sync.WaitGroup // tracks the result consumer, upload server, upload processor
	resultsCh       chan poller.Result
	uploadItemsCh   chan upload.Item
	uploadServer    *upload.Server
}

// New constructs an App. It starts nothing; call Start for the metrics
// server and DiscoveryStart/PollingStart for the monitoring pipeline.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	enum := cfg.Enumerator
	if enum == nil {
		enum = discovery.NetstatEnumerator{}
	}
	runner := cfg.Runner
	if runner == nil {
		runner = poller.ExecRunner{}
	}

	a := &App{
		cfg:      cfg.Settings,
		tmpl:     cfg.Template,
		enum:     enum,
		runner:   runner,
		logger:   logger,
		GWs:      models.NewOrderedStore[string, string](0),
		BGWs:     models.NewOrderedStore[string, *models.BGW](0),
		RTPs:     models.NewOrderedStore[string, models.RTPDetails](cfg.Settings.StorageMaxLen),
		PCAPs:    models.NewOrderedStore[string, models.Capture](0),
		sem:      poller.NewSemaphore(cfg.Settings.MaxPolling),
		metricsSrv: &metrics.Server{Addr: cfg.Settings.MetricsListenAddr, Logger: logger},
	}
	a.builder = &script.Builder{
		User:              cfg.Settings.User,
		Passwd:            cfg.Settings.Passwd,
		DiscoveryCommands: cfg.Settings.DiscoveryCommands,
		QueryCommands:     cfg.Settings.QueryCommands,
	}
	a.onChange = func() {
		metrics.RTPStoreSize.Set(float64(a.RTPs.Len()))
		if cfg.OnChange != nil {
			cfg.OnChange()
		}
	}
	return a
}

// Start launches ambient services that run for the lifetime of the engine
// regardless of discovery/polling state — currently just the metrics
// server.
func (a *App) Start() {
	a.metricsSrv.Start()
}

// Stop idempotently tears down everything: an inflight discovery, the
// polling pipeline, and the metrics server.
func (a *App) Stop() {
	a.DiscoveryStop()
	a.PollingStop()
	if err := a.metricsSrv.Stop(context.Background()); err != nil {
		a.logger.Error("app: metrics server stop error", "err", err)
	}
}

// DiscoveryStart clears GWs and BGWs, enumerates candidates (intersected
// with filter, if non-empty), and polls every candidate exactly once
// (spec.md §4.4). ips/proto, if ips is non-empty, bypasses the configured
// Enumerator entirely in favor of a StaticEnumerator (spec.md §4.4 "(ii)").
// Successes are handed to the Result Processor; failures are counted only.
func (a *App) DiscoveryStart(ctx context.Context, ips []string, proto string, filter map[string]struct{}, onProgress func(discovery.Progress)) error {
	a.mu.Lock()
	if a.polling {
		a.mu.Unlock()
		return fmt.Errorf("app: cannot run discovery while polling is active")
	}
	a.mu.Unlock()

	a.GWs.Clear()
	a.BGWs.Clear()

	enum := a.enum
	if len(ips) > 0 {
		enum = discovery.StaticEnumerator{IPs: ips, Proto: proto}
	}
	if len(filter) > 0 {
		enum = filteredEnumerator{inner: enum, filter: filter}
	}

	dctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.discoveryCancel = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.discoveryCancel = nil
		a.mu.Unlock()
		cancel()
	}()

	results, err := discovery.Run(dctx, enum, a.sem, a.builder, a.tmpl, a.runner, a.timeout(), a.cfg.PollingSecs, onProgress, a.logger)
	if err != nil {
		metrics.DiscoveryTotal.WithLabelValues(metrics.PollResultError).Inc()
		return fmt.Errorf("app: discovery: %w", err)
	}

	proc := a.newProcessor()
	for _, res := range results {
		if res.ErrorKind != "" {
			continue
		}
		proc.Process(res.Stdout, res.Gateway)
	}

	metrics.DiscoveryTotal.WithLabelValues(metrics.PollResultOK).Inc()
	return nil
}

// DiscoveryStop cancels an inflight DiscoveryStart call, if any. A no-op
// when no discovery is running.
func (a *App) DiscoveryStop() {
	a.mu.Lock()
	cancel := a.discoveryCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// PollingStart refuses if polling is already running or BGWs is empty
// (spec.md §4.10). It resets every BGW's last_seen watermark (so the
// gap between discovery and the first poll doesn't skew avg_poll_secs,
// mirroring bgw.py's "first last_seen doesn't compute a delta" rule),
// then starts one poller.Loop per gateway, a single Result Processor
// worker, and — unless the upload server is disabled — the Upload Server
// and Upload Processor.
func (a *App) PollingStart(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.polling {
		return fmt.Errorf("app: polling already running")
	}
	if a.BGWs.Len() == 0 {
		return fmt.Errorf("app: no gateways discovered")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	a.pollCancel = cancel
	a.polling = true

	for _, gw := range a.BGWs.Values() {
		gw.LastSeen = time.Time{}
	}

	a.resultsCh = make(chan poller.Result, a.cfg.MaxPolling)
	proc := a.newProcessor()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for res := range a.resultsCh {
			if res.ErrorKind != "" {
				metrics.PollTotal.WithLabelValues(pollResultLabel(res.ErrorKind)).Inc()
				continue
			}
			metrics.PollTotal.WithLabelValues(metrics.PollResultOK).Inc()
			proc.Process(res.Stdout, res.Gateway)
		}
	}()

	for _, gw := range a.BGWs.Values() {
		gw := gw
		a.pollersWG.Add(1)
		metrics.PollersActive.Inc()
		go func() {
			defer a.pollersWG.Done()
			defer metrics.PollersActive.Dec()
			poller.Loop(pollCtx, a.sem, a.builder, a.tmpl, a.runner, a.timeout(), gw.PollingSecs, gw, a.resultsCh, a.logger)
		}()
	}

	if !a.cfg.UploadServerDisabled() {
		a.uploadItemsCh = make(chan upload.Item, 64)
		a.uploadServer = &upload.Server{
			Addr:      fmt.Sprintf("%s:%d", a.cfg.HTTPServer, a.cfg.HTTPPort),
			UploadDir: a.cfg.UploadDir,
			Items:     a.uploadItemsCh,
			Logger:    a.logger,
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.uploadServer.ListenAndServe(); err != nil {
				a.logger.Error("app: upload server stopped", "err", err)
			}
		}()

		uploadProc := &upload.Processor{
			Runner:    a.runner,
			UploadDir: a.cfg.UploadDir,
			GWs:       a.GWs,
			PCAPs:     a.PCAPs,
			OnChange:  a.onChange,
			Logger:    a.logger,
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			uploadProc.Run(pollCtx, a.uploadItemsCh)
		}()
	}

	a.logger.Info("app: polling started", "gateways", a.BGWs.Len(), "max_polling", a.cfg.MaxPolling)
	return nil
}

// PollingStop signals cancellation to every poller and the upload
// pipeline, waits for inflight children to terminate, and closes the
// upload listener (spec.md §4.10). Idempotent.
func (a *App) PollingStop() {
	a.mu.Lock()
	if !a.polling {
		a.mu.Unlock()
		return
	}
	cancel := a.pollCancel
	srv := a.uploadServer
	a.polling = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	a.pollersWG.Wait()
	close(a.resultsCh)

	if srv != nil {
		srv.Close()
	}
	if a.uploadItemsCh != nil {
		close(a.uploadItemsCh)
	}

	a.wg.Wait()

	a.mu.Lock()
	a.uploadServer = nil
	a.uploadItemsCh = nil
	a.pollCancel = nil
	a.mu.Unlock()

	a.logger.Info("app: polling stopped")
}

func (a *App) newProcessor() *processor.Processor {
	return &processor.Processor{
		Stores: processor.Stores{
			GWs:  a.GWs,
			BGWs: a.BGWs,
			RTPs: a.RTPs,
		},
		NokRTPOnly: a.cfg.NokRTPOnly,
		OnChange:   a.onChange,
		Logger:     a.logger,
	}
}

func (a *App) timeout() time.Duration {
	return time.Duration(a.cfg.TimeoutSecs) * time.Second
}

func pollResultLabel(errorKind string) string {
	if errorKind == "Timeout" {
		return metrics.PollResultTimeout
	}
	return metrics.PollResultError
}

// filteredEnumerator applies discovery.Filter to an underlying
// Enumerator's output, letting DiscoveryStart combine the configured
// candidate source with an optional allow-set without the discovery
// package needing to know about filtering at all.
type filteredEnumerator struct {
	inner  discovery.Enumerator
	filter map[string]struct{}
}

func (f filteredEnumerator) Enumerate(ctx context.Context) (map[string]string, error) {
	candidates, err := f.inner.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return discovery.Filter(candidates, f.filter), nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
