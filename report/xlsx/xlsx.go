// Package xlsx exports the topology view and alerts of a cycle as an Excel
// workbook with two sheets, "Topology" and "Alerts".
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/topology"
)

// Sheet names.
const (
	SheetTopology = "Topology"
	SheetAlerts   = "Alerts"
)

// TopologyHeader is the first row of the Topology sheet.
var TopologyHeader = []string{
	"Device", "Interface", "Description", "Physical", "Protocol", "MPLS LDP", "OSPF",
	"Bandwidth", "Media", "MTU", "TX", "RX", "Interface IP", "Neighbor IP",
	"Neighbor device", "Neighbor site", "Cycle", "Neighbor cycle",
}

// AlertsHeader is the first row of the Alerts sheet.
var AlertsHeader = []string{
	"Time", "Cycle", "Device", "Link", "Type", "Severity", "Message", "Changes",
}

// Names turns the ids carried by links into display names. Unknown ids are
// rendered as "#<id>".
type Names struct {
	Devices map[int64]string
	Sites   map[int64]string
}

func (n Names) device(id int64) string {
	if s, ok := n.Devices[id]; ok {
		return s
	}
	return fmt.Sprintf("#%d", id)
}

func (n Names) site(id int64) string {
	if s, ok := n.Sites[id]; ok {
		return s
	}
	return fmt.Sprintf("#%d", id)
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, snap *topology.Snapshot, alerts []models.Alert, names Names) error {
	f, err := Build(snap, alerts, names)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write workbook: %w", err)
	}
	return nil
}

// Build returns the workbook. The caller closes it. A nil snap yields an
// empty Topology sheet.
func Build(snap *topology.Snapshot, alerts []models.Alert, names Names) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetTopology); err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetAlerts); err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: add sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: header style: %w", err)
	}

	var entries []topology.Entry
	if snap != nil {
		entries = snap.Entries
	}
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, topologyRow(e, names))
	}
	if err := writeSheet(f, SheetTopology, TopologyHeader, rows, header); err != nil {
		f.Close()
		return nil, err
	}

	rows = rows[:0]
	for _, a := range alerts {
		rows = append(rows, alertRow(a))
	}
	if err := writeSheet(f, SheetAlerts, AlertsHeader, rows, header); err != nil {
		f.Close()
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

func topologyRow(e topology.Entry, names Names) []interface{} {
	var neighborDevice, neighborSite string
	if e.NeighborDeviceID != nil {
		neighborDevice = names.device(*e.NeighborDeviceID)
	}
	if e.NeighborSiteID != nil {
		neighborSite = names.site(*e.NeighborSiteID)
	}
	return []interface{}{
		names.device(e.DeviceID),
		e.Name,
		e.Description,
		e.PhysicalStatus,
		e.ProtocolStatus,
		e.MPLSLDP,
		e.OSPF,
		e.Bandwidth,
		e.MediaType,
		e.MTU,
		e.TX,
		e.RX,
		e.InterfaceIP,
		e.NeighborIP,
		neighborDevice,
		neighborSite,
		e.Cycle,
		e.NeighborCycle,
	}
}

func alertRow(a models.Alert) []interface{} {
	changes := make([]string, 0, len(a.Details))
	for _, c := range a.Details {
		changes = append(changes, c.Description)
	}
	ts := ""
	if !a.CreatedAt.IsZero() {
		ts = a.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		ts,
		a.CrawlCycle,
		a.DeviceName,
		a.Link,
		a.Type,
		a.SeverityScore,
		a.Message,
		strings.Join(changes, "; "),
	}
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, style int) error {
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return fmt.Errorf("xlsx: %s header: %w", sheet, err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, i+2, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("xlsx: %s style: %w", sheet, err)
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return fmt.Errorf("xlsx: %s widths: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
