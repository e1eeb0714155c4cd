// Package app runs crawl cycles. One run:
//
//	loading snapshots → dispatching → joined → alerting → advancing counter → done
//
// The device registry and both directory snapshots are loaded once and shared
// read-only by every worker. The cycle counter moves only after every worker
// has returned and alerts for the new cycle are stored, so a reader never sees
// an advanced counter with an incomplete wave behind it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsonformat "github.com/vpbank/linkcrawler/format/json"
	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/alerts"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/crawler"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/resolver"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/snmp/probe"
	"github.com/vpbank/linkcrawler/store"
	filetransport "github.com/vpbank/linkcrawler/transport/file"
)

// ErrRunning is returned by RunOnce while another run is in progress.
var ErrRunning = errors.New("app: crawl already running")

// ─────────────────────────────────────────────────────────────────────────────
// Phases
// ─────────────────────────────────────────────────────────────────────────────

// Phase is a step of one run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseLoading     Phase = "loading snapshots"
	PhaseDispatching Phase = "dispatching"
	PhaseJoined      Phase = "joined"
	PhaseAlerting    Phase = "alerting"
	PhaseAdvancing   Phase = "advancing counter"
	PhaseDone        Phase = "done"
)

// PhaseTiming records how long a phase took.
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// Report summarises one run.
type Report struct {
	Cycle     int
	Devices   int
	Succeeded int
	Failed    int
	Links     int
	Alerts    int
	Results   []crawler.Result
	Phases    []PhaseTiming
	Started   time.Time
	Finished  time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the settings of the orchestrator. Zero-value fields fall back
// to documented defaults.
type Config struct {
	// Workers is the number of devices crawled concurrently. Default: 10.
	Workers int

	// DeviceTimeout bounds one device end to end. Default: 5m.
	DeviceTimeout time.Duration

	// FinalizeTimeout bounds alerting and the counter advance, which run
	// even when the run's context is cancelled after dispatch. Default: 1m.
	FinalizeTimeout time.Duration

	// Seed devices are upserted into the registry before it is loaded.
	Seed []models.Device

	Alerts alerts.Config
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = crawler.DefaultPoolWidth
	}
	if c.DeviceTimeout <= 0 {
		c.DeviceTimeout = 5 * time.Minute
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = time.Minute
	}
}

// Deps are the collaborators of an App. Prober, Journal and Formatter are
// optional.
type Deps struct {
	Store       store.Store
	Dialer      session.Dialer
	Directories *directory.Loader
	Prober      probe.Prober
	Journal     filetransport.Transport
	Formatter   jsonformat.Formatter
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App runs crawl cycles against a store.
type App struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	detector *alerts.Detector

	running sync.Mutex

	mu    sync.Mutex
	phase Phase
}

// New constructs an App.
func New(cfg Config, deps Deps, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	if deps.Directories == nil {
		deps.Directories = directory.NewLoader(nil, nil, directory.RetryConfig{}, logger)
	}
	if deps.Journal != nil && deps.Formatter == nil {
		deps.Formatter = jsonformat.New(jsonformat.Config{}, logger)
	}
	return &App{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		detector: alerts.New(deps.Store, deps.Store, cfg.Alerts, logger),
		phase:    PhaseIdle,
	}
}

// Phase returns the phase of the current run, or the last phase reached.
func (a *App) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// RunCycle runs one crawl and discards the report.
func (a *App) RunCycle(ctx context.Context) error {
	_, err := a.RunOnce(ctx)
	return err
}

// RunOnce crawls every registered device once. A failure of one device never
// fails the run; only a failure to read the registry or the counter before
// dispatch, or to advance the counter after it, does.
func (a *App) RunOnce(ctx context.Context) (Report, error) {
	if !a.running.TryLock() {
		return Report{}, ErrRunning
	}
	defer a.running.Unlock()

	rep := Report{Started: time.Now()}
	mark := a.phaseClock(&rep)

	// ── 1. Loading snapshots ────────────────────────────────────────────
	mark(PhaseLoading)
	devices, current, snaps, err := a.load(ctx)
	if err != nil {
		mark(PhaseDone)
		return rep, err
	}
	next := current + 1
	rep.Cycle = next
	rep.Devices = len(devices)

	// ── 2. Dispatching ──────────────────────────────────────────────────
	mark(PhaseDispatching)
	a.logger.Info("app: crawl started", "cycle", next, "devices", len(devices), "workers", a.cfg.Workers)

	res := resolver.New(resolver.Config{
		IPs:       snaps.ips,
		Locations: snaps.locations,
		Devices:   devices,
		Sites:     a.deps.Store,
		Logger:    a.logger,
	})
	worker := crawler.NewWorker(crawler.Config{
		Dialer:        a.deps.Dialer,
		Resolver:      res,
		Links:         a.deps.Store,
		Prober:        a.deps.Prober,
		DeviceTimeout: a.cfg.DeviceTimeout,
		Logger:        a.logger,
	})
	jobs := make([]crawler.Job, len(devices))
	for i, d := range devices {
		jobs[i] = crawler.Job{Device: d, Cycle: next}
	}
	rep.Results = crawler.NewPool(a.cfg.Workers, worker, a.logger).Run(ctx, jobs)

	// ── 3. Joined ───────────────────────────────────────────────────────
	mark(PhaseJoined)
	for _, r := range rep.Results {
		if r.OK() {
			rep.Succeeded++
			rep.Links += r.Links
		} else {
			rep.Failed++
		}
	}

	// The wave is persisted; finish it even if ctx was cancelled so the
	// cycle number is never reused.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.FinalizeTimeout)
	defer cancel()

	// ── 4. Alerting ─────────────────────────────────────────────────────
	mark(PhaseAlerting)
	rep.Alerts = a.raiseAlerts(fctx, next)

	// ── 5. Advancing counter ────────────────────────────────────────────
	mark(PhaseAdvancing)
	advanced, err := a.deps.Store.AdvanceCycle(fctx, current)
	if err != nil {
		mark(PhaseDone)
		return rep, fmt.Errorf("app: advance cycle %d: %w", current, err)
	}

	mark(PhaseDone)
	a.logger.Info("app: crawl finished",
		"cycle", advanced,
		"devices", rep.Devices,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"links", rep.Links,
		"alerts", rep.Alerts,
		"duration_ms", rep.Finished.Sub(rep.Started).Milliseconds(),
	)
	return rep, nil
}

// phaseClock returns a function that closes the running phase and opens p.
func (a *App) phaseClock(rep *Report) func(Phase) {
	var (
		cur   Phase
		since time.Time
	)
	return func(p Phase) {
		now := time.Now()
		if cur != "" {
			rep.Phases = append(rep.Phases, PhaseTiming{Phase: cur, Duration: now.Sub(since)})
		}
		cur, since = p, now
		if p == PhaseDone {
			rep.Finished = now
		}
		a.mu.Lock()
		a.phase = p
		a.mu.Unlock()
		a.logger.Debug("app: phase", "phase", string(p))
	}
}

type snapshots struct {
	ips       *directory.IPSnapshot
	locations *directory.LocationSnapshot
}

func (a *App) load(ctx context.Context) ([]models.Device, int, snapshots, error) {
	var snaps snapshots

	for _, d := range a.cfg.Seed {
		if _, err := a.deps.Store.UpsertDevice(ctx, d); err != nil {
			return nil, 0, snaps, fmt.Errorf("app: seed device %s: %w", d.Name, err)
		}
	}
	devices, err := a.deps.Store.ListDevices(ctx)
	if err != nil {
		return nil, 0, snaps, fmt.Errorf("app: load devices: %w", err)
	}
	current, err := a.deps.Store.CurrentCycle(ctx)
	if err != nil {
		return nil, 0, snaps, fmt.Errorf("app: read cycle: %w", err)
	}

	snaps.ips, err = a.deps.Directories.LoadIPs(ctx)
	if err != nil {
		a.logger.Warn("app: ip directory unavailable, neighbors will not resolve", "error", err.Error())
		snaps.ips = directory.NewIPSnapshot(nil)
	}
	snaps.locations, err = a.deps.Directories.LoadLocations(ctx)
	if err != nil {
		a.logger.Warn("app: location directory unavailable, sites will not resolve", "error", err.Error())
		snaps.locations = directory.NewLocationSnapshot(nil)
	}
	return devices, current, snaps, nil
}

// raiseAlerts detects, stores and journals the alerts of cycle. Failures are
// logged; alerting never blocks the counter.
func (a *App) raiseAlerts(ctx context.Context, cycle int) int {
	found, err := a.detector.Detect(ctx, cycle)
	if err != nil {
		a.logger.Error("app: alert detection failed", "cycle", cycle, "error", err.Error())
		return 0
	}
	if len(found) == 0 {
		return 0
	}
	if err := a.deps.Store.CreateAlerts(ctx, found); err != nil {
		a.logger.Error("app: store alerts failed", "cycle", cycle, "alerts", len(found), "error", err.Error())
	}

	if a.deps.Journal != nil {
		if cw, ok := a.deps.Journal.(filetransport.CycleWriter); ok {
			if err := cw.BeginCycle(cycle); err != nil {
				a.logger.Warn("app: journal cycle rollover failed", "cycle", cycle, "error", err.Error())
			}
		}
		for i := range found {
			data, err := a.deps.Formatter.Format(&found[i])
			if err != nil {
				continue
			}
			if err := a.deps.Journal.Send(data); err != nil {
				a.logger.Warn("app: journal write failed", "error", err.Error())
				break
			}
		}
	}
	return len(found)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
