// Package storetest holds a behavioural test suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("devices", func(t *testing.T) {
		a, err := s.UpsertDevice(ctx, models.Device{Name: "PE1", IP: "10.0.0.1"})
		require.NoError(t, err)
		assert.NotZero(t, a.ID)

		again, err := s.UpsertDevice(ctx, models.Device{Name: "PE1-renamed", IP: "10.0.0.1"})
		require.NoError(t, err)
		assert.Equal(t, a.ID, again.ID)
		assert.Equal(t, "PE1-renamed", again.Name)

		_, err = s.UpsertDevice(ctx, models.Device{Name: "PE2", IP: "10.0.0.2"})
		require.NoError(t, err)

		all, err := s.ListDevices(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("sites", func(t *testing.T) {
		_, err := s.SiteByName(ctx, "TLV-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		site, err := s.CreateSite(ctx, models.Site{Name: "TLV-1"})
		require.NoError(t, err)
		assert.NotZero(t, site.ID)

		_, err = s.CreateSite(ctx, models.Site{Name: "TLV-1"})
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.SiteByName(ctx, "TLV-1")
		require.NoError(t, err)
		assert.Equal(t, site.ID, got.ID)

		devs, err := s.ListDevices(ctx)
		require.NoError(t, err)
		require.NoError(t, s.AttachSite(ctx, site.ID, devs[0].ID))
		require.NoError(t, s.AttachSite(ctx, site.ID, devs[0].ID), "attach is idempotent")

		sites, err := s.ListSites(ctx)
		require.NoError(t, err)
		assert.Len(t, sites, 1)
	})

	t.Run("links", func(t *testing.T) {
		devs, err := s.ListDevices(ctx)
		require.NoError(t, err)
		site, err := s.SiteByName(ctx, "TLV-1")
		require.NoError(t, err)
		dev := devs[0].ID

		batch := []models.Link{
			{DeviceID: dev, CrawlCycle: 1, LinkAttributes: models.LinkAttributes{Name: "Gi0/0/0/1", PhysicalStatus: "up"}},
			{DeviceID: dev, CrawlCycle: 1, LinkAttributes: models.LinkAttributes{Name: "Gi0/0/0/2"},
				NeighborIP: "10.9.9.9", NeighborSiteID: models.Int64(site.ID)},
		}
		require.NoError(t, s.CreateLinks(ctx, batch))

		got, err := s.LinksByCycle(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 2)
		byName := map[string]models.Link{}
		for _, l := range got {
			byName[l.Name] = l
		}
		assert.Equal(t, "up", byName["Gi0/0/0/1"].PhysicalStatus)
		assert.False(t, byName["Gi0/0/0/1"].HasNeighbor())
		assert.Equal(t, "10.9.9.9", byName["Gi0/0/0/2"].NeighborIP)
		require.NotNil(t, byName["Gi0/0/0/2"].NeighborSiteID)
		assert.Equal(t, site.ID, *byName["Gi0/0/0/2"].NeighborSiteID)
		assert.False(t, byName["Gi0/0/0/2"].CreatedAt.IsZero())

		// Duplicate (device, name, cycle) is rejected and nothing is written.
		err = s.CreateLinks(ctx, []models.Link{
			{DeviceID: dev, CrawlCycle: 2, LinkAttributes: models.LinkAttributes{Name: "Gi0/0/0/3"}},
			{DeviceID: dev, CrawlCycle: 1, LinkAttributes: models.LinkAttributes{Name: "Gi0/0/0/1"}},
		})
		assert.ErrorIs(t, err, store.ErrConflict)
		got, err = s.LinksByCycle(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, got)

		withNeighbor, err := s.LinksWithNeighbor(ctx)
		require.NoError(t, err)
		require.Len(t, withNeighbor, 1)
		assert.Equal(t, "Gi0/0/0/2", withNeighbor[0].Name)
	})

	t.Run("alerts", func(t *testing.T) {
		in := models.Alert{
			Type: "Warning", Message: "m", Source: models.AlertSource, Link: "Gi0/0/0/1",
			SeverityScore: 6, CrawlCycle: 7, DeviceID: 1, DeviceName: "PE1",
			Details: []models.Change{{Field: "physical_status", OldValue: "up", NewValue: "down"}},
		}
		require.NoError(t, s.CreateAlerts(ctx, []models.Alert{in}))

		got, err := s.AlertsByCycle(ctx, 7)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Warning", got[0].Type)
		assert.Equal(t, in.Details, got[0].Details)

		none, err := s.AlertsByCycle(ctx, 8)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("cycles", func(t *testing.T) {
		n, err := s.CurrentCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		next, err := s.AdvanceCycle(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, next)

		_, err = s.AdvanceCycle(ctx, 0)
		assert.True(t, errors.Is(err, store.ErrCycleMoved))

		n, err = s.CurrentCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent site create", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateSite(ctx, models.Site{Name: "RACE"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, store.ErrConflict):
					conflicts++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, 7, conflicts)
	})
}
