package xlsx_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/topology"
	"github.com/vpbank/linkcrawler/report/xlsx"
)

func TestWriteRoundTrip(t *testing.T) {
	snap := &topology.Snapshot{
		Cycle: 4,
		Entries: []topology.Entry{
			{
				Link: models.Link{
					DeviceID: 1,
					LinkAttributes: models.LinkAttributes{
						Name:           "GigabitEthernet0/0/0/1",
						PhysicalStatus: "up",
						ProtocolStatus: "up",
						OSPF:           "FULL",
					},
					NeighborIP:       "10.1.1.2",
					NeighborDeviceID: models.Int64(2),
				},
				Cycle:         4,
				NeighborCycle: 3,
			},
			{
				Link: models.Link{
					DeviceID:       1,
					LinkAttributes: models.LinkAttributes{Name: "GigabitEthernet0/0/0/2"},
					NeighborSiteID: models.Int64(9),
				},
				Cycle:         4,
				NeighborCycle: 4,
			},
		},
	}
	alerts := []models.Alert{{
		Type:          "Error",
		Message:       "Link GigabitEthernet0/0/0/1 on core device core-a has changed: Ospf changed from 'FULL' to 'INIT'",
		Link:          "GigabitEthernet0/0/0/1",
		SeverityScore: 10,
		CrawlCycle:    4,
		DeviceName:    "core-a",
		CreatedAt:     time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		Details: []models.Change{
			{Description: "Ospf changed from 'FULL' to 'INIT'"},
			{Description: "Mpls ldp changed from 'up' to 'down'"},
		},
	}}
	names := xlsx.Names{
		Devices: map[int64]string{1: "core-a", 2: "core-b"},
		Sites:   map[int64]string{9: "BRANCH-01"},
	}

	var buf bytes.Buffer
	require.NoError(t, xlsx.Write(&buf, snap, alerts, names))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{xlsx.SheetTopology, xlsx.SheetAlerts}, f.GetSheetList())

	rows, err := f.GetRows(xlsx.SheetTopology)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, xlsx.TopologyHeader, rows[0])
	assert.Equal(t, "core-a", rows[1][0])
	assert.Equal(t, "GigabitEthernet0/0/0/1", rows[1][1])
	assert.Equal(t, "FULL", rows[1][6])
	assert.Equal(t, "10.1.1.2", rows[1][13])
	assert.Equal(t, "core-b", rows[1][14])
	assert.Equal(t, "4", rows[1][16])
	assert.Equal(t, "3", rows[1][17])
	assert.Equal(t, "BRANCH-01", rows[2][15])

	rows, err = f.GetRows(xlsx.SheetAlerts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, xlsx.AlertsHeader, rows[0])
	assert.Equal(t, []string{
		"2024-05-01 08:30:00",
		"4",
		"core-a",
		"GigabitEthernet0/0/0/1",
		"Error",
		"10",
		alerts[0].Message,
		"Ospf changed from 'FULL' to 'INIT'; Mpls ldp changed from 'up' to 'down'",
	}, rows[1])
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xlsx.Write(&buf, nil, nil, xlsx.Names{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsx.SheetTopology)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = f.GetRows(xlsx.SheetAlerts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUnknownNamesFallBackToID(t *testing.T) {
	snap := &topology.Snapshot{Entries: []topology.Entry{{
		Link: models.Link{
			DeviceID:         7,
			LinkAttributes:   models.LinkAttributes{Name: "Bundle-Ether1"},
			NeighborDeviceID: models.Int64(8),
		},
	}}}
	f, err := xlsx.Build(snap, nil, xlsx.Names{})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsx.SheetTopology)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "#7", rows[1][0])
	assert.Equal(t, "#8", rows[1][14])
}
