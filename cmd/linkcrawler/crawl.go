package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/linkcrawler/pkg/linkcrawler/app"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/config"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/scheduler"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/trapreceiver"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/ui"
	"github.com/vpbank/linkcrawler/store"
	"github.com/vpbank/linkcrawler/store/memory"
)

func newCrawlCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every device, once or on an interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runCrawl(cmd.Context())
		},
	}
	cmd.Flags().Bool("once", false, "run a single crawl and exit")
	cmd.Flags().Bool("dry-run", false, "crawl once into an in-memory store; nothing is persisted or journaled")
	cmd.Flags().Duration("interval", 0, "time between crawl starts (overrides crawl.interval)")
	cmd.Flags().Int("workers", 0, "devices crawled concurrently (overrides crawl.workers)")
	return cmd
}

func (e *env) runCrawl(parent context.Context) error {
	if d := e.v.GetDuration("interval"); d > 0 {
		e.cfg.Crawl.Interval = d
	}
	if n := e.v.GetInt("workers"); n > 0 {
		e.cfg.Crawl.Workers = n
	}

	dryRun := e.v.GetBool("dry-run")
	cfg := e.cfg
	var st store.Store
	if dryRun {
		st = memory.New()
		dry := *e.cfg
		dry.Journal = config.JournalConfig{}
		cfg = &dry
	} else {
		db, err := e.openStore()
		if err != nil {
			return err
		}
		st = db
	}
	defer st.Close()

	a, closer, err := app.Assemble(cfg, st, e.logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &reportingRunner{app: a, out: e.out}
	if dryRun || e.v.GetBool("once") {
		return r.RunCycle(ctx)
	}

	sched := scheduler.New(scheduler.Config{Interval: e.cfg.Crawl.Interval}, r, e.logger)

	if e.cfg.Traps.Enabled {
		recv := trapreceiver.New(trapreceiver.Config{
			ListenAddr: e.cfg.Traps.ListenAddr,
			Community:  e.cfg.Traps.Community,
			Known:      registered(ctx, st),
		}, e.logger)
		if err := recv.Start(ctx); err != nil {
			return err
		}
		defer recv.Stop()
		go func() {
			for ev := range recv.Output() {
				e.logger.Info("linkcrawler: link trap, crawl requested",
					"agent", ev.AgentIP,
					"kind", ev.Kind,
					"interface", ev.Interface,
				)
				sched.Trigger()
			}
		}()
	}

	go sched.Start(ctx)
	e.logger.Info("linkcrawler: running, press Ctrl-C to stop", "interval", e.cfg.Crawl.Interval.String())

	<-ctx.Done()
	e.logger.Info("linkcrawler: received shutdown signal")
	sched.Stop()
	e.logger.Info("linkcrawler: stopped", "runs", sched.Runs(), "failed_runs", sched.Failures())
	return nil
}

// reportingRunner prints a summary after every run.
type reportingRunner struct {
	app *app.App
	out io.Writer
}

func (r *reportingRunner) RunCycle(ctx context.Context) error {
	rep, err := r.app.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, ui.Run(rep))
	return nil
}

// registered reports whether ip belongs to a device of the registry. Lookup
// failures reject the trap.
func registered(ctx context.Context, devices store.Devices) func(ip string) bool {
	return func(ip string) bool {
		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		list, err := devices.ListDevices(lctx)
		if err != nil {
			return false
		}
		for _, d := range list {
			if d.IP == ip {
				return true
			}
		}
		return false
	}
}
