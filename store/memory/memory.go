// Package memory is an in-process implementation of store.Store. It is safe
// for concurrent use and backs tests and `linkcrawler crawl --dry-run`.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store"
)

type linkKey struct {
	device int64
	name   string
	cycle  int
}

type assoc struct{ site, device int64 }

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	nextID int64
	now    func() time.Time

	devices []models.Device
	sites   []models.Site
	assocs  map[assoc]struct{}
	links   []models.Link
	linkIdx map[linkKey]struct{}
	alerts  []models.Alert
	cycle   int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:     time.Now,
		assocs:  make(map[assoc]struct{}),
		linkIdx: make(map[linkKey]struct{}),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListDevices(_ context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Device(nil), s.devices...), nil
}

func (s *Store) UpsertDevice(_ context.Context, d models.Device) (models.Device, error) {
	if d.IP == "" {
		return models.Device{}, fmt.Errorf("memory: device ip is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].IP == d.IP {
			s.devices[i].Name = d.Name
			return s.devices[i], nil
		}
	}
	d.ID = s.id()
	s.devices = append(s.devices, d)
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sites
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) SiteByName(_ context.Context, name string) (models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range s.sites {
		if site.Name == name {
			return site, nil
		}
	}
	return models.Site{}, store.ErrNotFound
}

func (s *Store) CreateSite(_ context.Context, site models.Site) (models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sites {
		if existing.Name == site.Name {
			return models.Site{}, fmt.Errorf("memory: site %q: %w", site.Name, store.ErrConflict)
		}
	}
	site.ID = s.id()
	s.sites = append(s.sites, site)
	return site, nil
}

func (s *Store) ListSites(_ context.Context) ([]models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Site(nil), s.sites...), nil
}

func (s *Store) AttachSite(_ context.Context, siteID, deviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assocs[assoc{siteID, deviceID}] = struct{}{}
	return nil
}

// SiteDevices returns the device IDs attached to siteID, sorted.
func (s *Store) SiteDevices(siteID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for a := range s.assocs {
		if a.site == siteID {
			out = append(out, a.device)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Links
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateLinks(_ context.Context, links []models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[linkKey]struct{}, len(links))
	for _, l := range links {
		k := linkKey{l.DeviceID, l.Name, l.CrawlCycle}
		_, dupStore := s.linkIdx[k]
		_, dupBatch := batch[k]
		if dupStore || dupBatch {
			return fmt.Errorf("memory: link %s/%d/%d: %w", l.Name, l.DeviceID, l.CrawlCycle, store.ErrConflict)
		}
		batch[k] = struct{}{}
	}

	now := s.now()
	for _, l := range links {
		l.ID = s.id()
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		s.links = append(s.links, l)
		s.linkIdx[linkKey{l.DeviceID, l.Name, l.CrawlCycle}] = struct{}{}
	}
	return nil
}

func (s *Store) LinksByCycle(_ context.Context, cycle int) ([]models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Link
	for _, l := range s.links {
		if l.CrawlCycle == cycle {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) LinksWithNeighbor(_ context.Context) ([]models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Link
	for _, l := range s.links {
		if l.HasNeighbor() {
			out = append(out, l)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Alerts
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateAlerts(_ context.Context, alerts []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, a := range alerts {
		a.ID = s.id()
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		s.alerts = append(s.alerts, a)
	}
	return nil
}

func (s *Store) AlertsByCycle(_ context.Context, cycle int) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.CrawlCycle == cycle {
			out = append(out, a)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycles
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CurrentCycle(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle, nil
}

func (s *Store) AdvanceCycle(_ context.Context, expected int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle != expected {
		return s.cycle, fmt.Errorf("memory: expected %d, have %d: %w", expected, s.cycle, store.ErrCycleMoved)
	}
	s.cycle++
	return s.cycle, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
