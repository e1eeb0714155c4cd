// Package ui renders crawl results for the terminal.
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/app"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/topology"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// FormatError returns a styled multi-line error message.
func FormatError(title, detail, suggestion string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		out += "  " + detail + "\n"
	}
	if suggestion != "" {
		out += "  " + hintStyle.Render("Hint: "+suggestion) + "\n"
	}
	return out
}

// Success renders msg in green.
func Success(msg string) string {
	return successStyle.Render(msg)
}

// Run summarises one crawl run: totals, phase timings and every failed
// device.
func Run(rep app.Report) string {
	var b strings.Builder

	status := successStyle.Render("OK ")
	if rep.Failed > 0 {
		status = warnStyle.Render("!! ")
	}
	fmt.Fprintf(&b, "%s %s %s\n", status, boldStyle.Render(fmt.Sprintf("Cycle %d", rep.Cycle)),
		dimStyle.Render(rep.Finished.Sub(rep.Started).Round(time.Millisecond).String()))
	fmt.Fprintf(&b, "  devices %d  succeeded %d  failed %d  links %d  alerts %d\n",
		rep.Devices, rep.Succeeded, rep.Failed, rep.Links, rep.Alerts)

	if len(rep.Phases) > 0 {
		parts := make([]string, 0, len(rep.Phases))
		for _, p := range rep.Phases {
			parts = append(parts, fmt.Sprintf("%s %s", p.Phase, p.Duration.Round(time.Millisecond)))
		}
		b.WriteString("  " + dimStyle.Render(strings.Join(parts, " · ")) + "\n")
	}

	for _, r := range rep.Results {
		if r.OK() {
			continue
		}
		fmt.Fprintf(&b, "  %s %s: %v\n", errorStyle.Render("ERR"), r.Device.Name, r.Err)
	}
	return b.String()
}

// Topology renders the entries of snap as a table.
func Topology(snap *topology.Snapshot, devices map[int64]string) string {
	if snap == nil || len(snap.Entries) == 0 {
		return hintStyle.Render("No links recorded yet.") + "\n"
	}
	rows := make([][]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		neighbor := e.NeighborIP
		if e.NeighborDeviceID != nil {
			neighbor = name(devices, *e.NeighborDeviceID)
		} else if e.NeighborSiteID != nil {
			neighbor = "site #" + strconv.FormatInt(*e.NeighborSiteID, 10)
		}
		rows = append(rows, []string{
			name(devices, e.DeviceID),
			e.Name,
			e.PhysicalStatus + "/" + e.ProtocolStatus,
			e.MPLSLDP,
			e.OSPF,
			neighbor,
			strconv.Itoa(e.NeighborCycle),
		})
	}
	t := newTable([]string{"DEVICE", "INTERFACE", "STATUS", "LDP", "OSPF", "NEIGHBOR", "SEEN"}, rows)
	return boldStyle.Render(fmt.Sprintf("Topology at cycle %d", snap.Cycle)) + "\n" + t.Render() + "\n"
}

// Alerts renders alerts one per line, coloured by type.
func Alerts(alerts []models.Alert) string {
	if len(alerts) == 0 {
		return hintStyle.Render("No alerts.") + "\n"
	}
	var b strings.Builder
	for _, a := range alerts {
		style := warnStyle
		switch strings.ToLower(a.Type) {
		case "info":
			style = successStyle
		case "error", "critical":
			style = errorStyle
		}
		label := style.Render(fmt.Sprintf("%-7s %2d", a.Type, a.SeverityScore))
		fmt.Fprintf(&b, "%s %s\n", label, a.Message)
	}
	return b.String()
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func name(names map[int64]string, id int64) string {
	if s, ok := names[id]; ok {
		return s
	}
	return "#" + strconv.FormatInt(id, 10)
}
