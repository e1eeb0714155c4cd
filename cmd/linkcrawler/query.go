package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	jsonformat "github.com/vpbank/linkcrawler/format/json"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/topology"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/ui"
	"github.com/vpbank/linkcrawler/store"
	filetransport "github.com/vpbank/linkcrawler/transport/file"
)

func newAlertsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List the alerts raised for a crawl cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runAlerts(cmd.Context())
		},
	}
	cmd.Flags().Int("cycle", 0, "crawl cycle (default: latest completed)")
	cmd.Flags().Bool("json", false, "print one JSON object per line")
	return cmd
}

func (e *env) runAlerts(ctx context.Context) error {
	ctx = orBackground(ctx)
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cycle, err := e.cycle(ctx, st)
	if err != nil {
		return err
	}
	alerts, err := st.AlertsByCycle(ctx, cycle)
	if err != nil {
		return err
	}

	if !e.v.GetBool("json") {
		fmt.Fprint(e.out, ui.Alerts(alerts))
		return nil
	}
	f := jsonformat.New(jsonformat.Config{}, e.logger)
	t := filetransport.New(filetransport.Config{Writer: e.out}, e.logger)
	defer t.Close()
	for i := range alerts {
		data, err := f.Format(&alerts[i])
		if err != nil {
			return err
		}
		if err := t.Send(data); err != nil {
			return err
		}
	}
	return nil
}

func newTopologyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show every link with its last known neighbor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runTopology(cmd.Context())
		},
	}
	cmd.Flags().Bool("end-sites", false, "only links that reach a site but no known core device")
	cmd.Flags().Int64("device", 0, "device id for --end-sites")
	return cmd
}

func (e *env) runTopology(ctx context.Context) error {
	ctx = orBackground(ctx)
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := deviceNames(ctx, st)
	if err != nil {
		return err
	}
	cache := topology.New(st, e.logger)

	if e.v.GetBool("end-sites") {
		device := e.v.GetInt64("device")
		if device == 0 {
			return fmt.Errorf("--end-sites requires --device")
		}
		entries, err := cache.EndSites(ctx, device)
		if err != nil {
			return err
		}
		snap, err := cache.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(e.out, ui.Topology(&topology.Snapshot{Cycle: snap.Cycle, Entries: entries}, names))
		return nil
	}

	snap, err := cache.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(e.out, ui.Topology(snap, names))
	return nil
}

// cycle returns --cycle, or the latest completed cycle.
func (e *env) cycle(ctx context.Context, st store.Cycles) (int, error) {
	if c := e.v.GetInt("cycle"); c > 0 {
		return c, nil
	}
	return st.CurrentCycle(ctx)
}

func deviceNames(ctx context.Context, st store.Devices) (map[int64]string, error) {
	devices, err := st.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(devices))
	for _, d := range devices {
		names[d.ID] = d.Name
	}
	return names, nil
}

func siteNames(ctx context.Context, st store.Sites) (map[int64]string, error) {
	sites, err := st.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(sites))
	for _, s := range sites {
		names[s.ID] = s.Name
	}
	return names, nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

