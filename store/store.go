// Package store defines the typed repository contract the crawler reads from
// and writes to. Implementations live in the sub-packages: sqlite for
// deployments and memory for tests and `crawl --dry-run`.
package store

import (
	"context"
	"errors"

	"github.com/vpbank/linkcrawler/models"
)

// Sentinel errors shared by all implementations. Callers test with errors.Is.
var (
	// ErrNotFound is returned by single-record lookups that match nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a create violates a uniqueness constraint
	// (site name, or device/interface/cycle for links).
	ErrConflict = errors.New("store: conflict")

	// ErrCycleMoved is returned by AdvanceCycle when the counter no longer
	// holds the expected value.
	ErrCycleMoved = errors.New("store: crawl cycle moved")
)

// Devices is the device registry.
type Devices interface {
	ListDevices(ctx context.Context) ([]models.Device, error)

	// UpsertDevice creates the device or updates its name, keyed by IP.
	UpsertDevice(ctx context.Context, d models.Device) (models.Device, error)
}

// Sites holds neighbor sites and their association with core devices.
type Sites interface {
	SiteByName(ctx context.Context, name string) (models.Site, error)
	CreateSite(ctx context.Context, s models.Site) (models.Site, error)
	ListSites(ctx context.Context) ([]models.Site, error)

	// AttachSite records that deviceID reaches siteID. Idempotent.
	AttachSite(ctx context.Context, siteID, deviceID int64) error
}

// Links holds per-cycle link records.
type Links interface {
	// CreateLinks inserts all links or none.
	CreateLinks(ctx context.Context, links []models.Link) error
	LinksByCycle(ctx context.Context, cycle int) ([]models.Link, error)

	// LinksWithNeighbor returns every link, across all cycles, that carries a
	// neighbor device or neighbor site.
	LinksWithNeighbor(ctx context.Context) ([]models.Link, error)
}

// Alerts holds raised alerts.
type Alerts interface {
	CreateAlerts(ctx context.Context, alerts []models.Alert) error
	AlertsByCycle(ctx context.Context, cycle int) ([]models.Alert, error)
}

// Cycles is the single crawl-cycle counter.
type Cycles interface {
	// CurrentCycle returns the counter value; 0 before the first advance.
	CurrentCycle(ctx context.Context) (int, error)

	// AdvanceCycle moves the counter from expected to expected+1 atomically
	// and returns the new value, or ErrCycleMoved.
	AdvanceCycle(ctx context.Context, expected int) (int, error)
}

// Store is the full repository surface.
type Store interface {
	Devices
	Sites
	Links
	Alerts
	Cycles
	Close() error
}
