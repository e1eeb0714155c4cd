// Package crawler implements the per-device stage of a crawl cycle: run the
// five CLI commands over one SSH session, fuse their output into links,
// resolve neighbors, and persist the links tagged with the cycle.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/vpbank/linkcrawler/cli/decoder"
	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/resolver"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/producer/links"
	"github.com/vpbank/linkcrawler/snmp/probe"
	"github.com/vpbank/linkcrawler/store"
)

// ─────────────────────────────────────────────────────────────────────────────
// Job / Result
// ─────────────────────────────────────────────────────────────────────────────

// Job is one device to crawl in one cycle.
type Job struct {
	Device models.Device
	Cycle  int
}

// Stages a device crawl can fail in.
const (
	StageProbe    = "probe"
	StageDial     = "dial"
	StageDeadline = "deadline"
	StagePersist  = "persist"
	StagePanic    = "panic"
)

// DeviceError is the failure of one device crawl.
type DeviceError struct {
	Device string
	Stage  string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("crawler: %s: %s: %v", e.Device, e.Stage, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Result is the outcome of one Job. A nil Err means the links were stored.
type Result struct {
	Device models.Device
	Cycle  int

	Links     int
	Neighbors int

	// CommandErrors maps a command to the error that degraded it to empty
	// output.
	CommandErrors map[string]string

	Ambiguous []links.Ambiguity
	Unmatched []string

	Started  time.Time
	Finished time.Time
	Err      error
}

// OK reports whether the device was crawled and stored.
func (r Result) OK() bool { return r.Err == nil }

// Duration of the crawl.
func (r Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Crawler executes one Job.
type Crawler interface {
	Crawl(ctx context.Context, job Job) Result
}

// ─────────────────────────────────────────────────────────────────────────────
// Worker
// ─────────────────────────────────────────────────────────────────────────────

// Config wires a Worker.
type Config struct {
	Dialer   session.Dialer
	Resolver *resolver.Resolver
	Links    store.Links

	// Prober is optional. When set, a device that fails the probe is not
	// dialled.
	Prober probe.Prober

	// DeviceTimeout bounds one device end to end (default 5m).
	DeviceTimeout time.Duration

	Logger *slog.Logger
}

// Worker is the production Crawler. It holds no per-device state and is
// safe for concurrent use.
type Worker struct {
	cfg    Config
	logger *slog.Logger
}

// NewWorker returns a Worker.
func NewWorker(cfg Config) *Worker {
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Worker{cfg: cfg, logger: logger}
}

// Crawl runs job. It never panics and never returns an error other than
// through Result.Err.
func (w *Worker) Crawl(ctx context.Context, job Job) (res Result) {
	res = Result{Device: job.Device, Cycle: job.Cycle, Started: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("crawler: panic",
				"device", job.Device.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			res.Err = &DeviceError{Device: job.Device.Name, Stage: StagePanic, Err: fmt.Errorf("%v", r)}
		}
		res.Finished = time.Now()
	}()

	dctx, cancel := context.WithTimeout(ctx, w.cfg.DeviceTimeout)
	defer cancel()

	fail := func(stage string, err error) Result {
		res.Err = &DeviceError{Device: job.Device.Name, Stage: stage, Err: err}
		w.logger.Warn("crawler: device failed",
			"device", job.Device.Name,
			"ip", job.Device.IP,
			"stage", stage,
			"error", err.Error(),
		)
		return res
	}

	if w.cfg.Prober != nil {
		pr, err := w.cfg.Prober.Probe(dctx, job.Device.IP)
		if err != nil {
			return fail(StageProbe, err)
		}
		w.logger.Debug("crawler: probe ok",
			"device", job.Device.Name,
			"sys_name", pr.SysName,
			"rtt_ms", pr.RTT.Milliseconds(),
		)
	}

	sess, err := w.cfg.Dialer.Dial(dctx, job.Device.IP)
	if err != nil {
		return fail(StageDial, err)
	}
	defer sess.Close()

	transcripts := make(map[string]string, len(decoder.Commands))
	for _, cmd := range decoder.Commands {
		out, err := sess.Run(dctx, cmd)
		if dctx.Err() != nil && ctx.Err() == nil {
			return fail(StageDeadline, fmt.Errorf("%q after %s: %w", cmd, w.cfg.DeviceTimeout, session.ErrTimeout))
		}
		if ctx.Err() != nil {
			return fail(StageDeadline, ctx.Err())
		}
		if err != nil {
			if res.CommandErrors == nil {
				res.CommandErrors = make(map[string]string)
			}
			res.CommandErrors[cmd] = err.Error()
			w.logger.Warn("crawler: command failed",
				"device", job.Device.Name,
				"command", cmd,
				"timeout", errors.Is(err, session.ErrTimeout),
				"error", err.Error(),
			)
			out = ""
		}
		transcripts[cmd] = out
	}
	_ = sess.Close()

	fused, report := links.Fuse(links.Decode(transcripts))
	res.Ambiguous = report.Ambiguous
	res.Unmatched = report.Unmatched
	for _, a := range report.Ambiguous {
		w.logger.Warn("crawler: ambiguous optics port skipped",
			"device", job.Device.Name,
			"port", a.Port,
			"candidates", a.Candidates,
		)
	}

	names := make([]string, 0, len(fused))
	for name := range fused {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	batch := make([]models.Link, 0, len(names))
	for _, name := range names {
		l := models.Link{
			DeviceID:       job.Device.ID,
			LinkAttributes: fused[name],
			CrawlCycle:     job.Cycle,
			CreatedAt:      now,
		}
		if w.cfg.Resolver != nil {
			w.cfg.Resolver.Resolve(dctx, job.Device.ID, l.LinkAttributes).Apply(&l)
		}
		if l.HasNeighbor() {
			res.Neighbors++
		}
		batch = append(batch, l)
	}

	if err := w.cfg.Links.CreateLinks(ctx, batch); err != nil {
		return fail(StagePersist, err)
	}
	res.Links = len(batch)

	w.logger.Info("crawler: device crawled",
		"device", job.Device.Name,
		"cycle", job.Cycle,
		"links", res.Links,
		"neighbors", res.Neighbors,
		"command_errors", len(res.CommandErrors),
		"duration_ms", time.Since(res.Started).Milliseconds(),
	)
	return res
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
