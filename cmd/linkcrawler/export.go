package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpbank/linkcrawler/pkg/linkcrawler/topology"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/ui"
	"github.com/vpbank/linkcrawler/report/xlsx"
)

func newExportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the topology and the alerts of a cycle to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runExport(cmd.Context())
		},
	}
	cmd.Flags().StringP("out", "o", "linkcrawler.xlsx", "output workbook")
	cmd.Flags().Int("cycle", 0, "cycle whose alerts are exported (default: latest completed)")
	return cmd
}

func (e *env) runExport(ctx context.Context) error {
	ctx = orBackground(ctx)
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := topology.New(st, e.logger).Get(ctx)
	if err != nil {
		return err
	}
	cycle, err := e.cycle(ctx, st)
	if err != nil {
		return err
	}
	alerts, err := st.AlertsByCycle(ctx, cycle)
	if err != nil {
		return err
	}
	devices, err := deviceNames(ctx, st)
	if err != nil {
		return err
	}
	sites, err := siteNames(ctx, st)
	if err != nil {
		return err
	}

	out := e.v.GetString("out")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := xlsx.Write(f, snap, alerts, xlsx.Names{Devices: devices, Sites: sites}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintln(e.out, ui.Success(fmt.Sprintf("Wrote %s (%d links, %d alerts)", out, len(snap.Entries), len(alerts))))
	return nil
}
