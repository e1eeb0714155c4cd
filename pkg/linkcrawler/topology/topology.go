// Package topology serves the consolidated link view: operational fields
// from the latest completed cycle, neighbor identity from the most recent
// cycle that resolved one.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store"
)

// Entry is one link of the view. Link carries the latest-cycle record with
// the neighbor fields overlaid.
type Entry struct {
	models.Link

	// Cycle is the cycle the operational fields come from.
	Cycle int `json:"cycle"`

	// NeighborCycle is the cycle the neighbor identity comes from; 0 when no
	// cycle ever resolved a neighbor for this link.
	NeighborCycle int `json:"neighbor_cycle"`
}

// Snapshot is an immutable view built for one cycle. Callers must not modify
// it.
type Snapshot struct {
	Cycle   int
	BuiltAt time.Time
	Entries []Entry
}

// Store is the read surface the cache needs.
type Store interface {
	store.Links
	store.Cycles
}

// Cache holds the view of the latest completed cycle.
type Cache struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	snap   *Snapshot
	builds int
}

// New returns an empty Cache.
func New(s Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Cache{store: s, logger: logger}
}

// Get returns the view of the current cycle, rebuilding it when the cycle
// counter moved since the last build.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycle, err := c.store.CurrentCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("topology: current cycle: %w", err)
	}
	if c.snap != nil && c.snap.Cycle == cycle {
		return c.snap, nil
	}

	snap, err := c.build(ctx, cycle)
	if err != nil {
		return nil, err
	}
	if c.snap != nil {
		c.logger.Debug("topology: stale view replaced", "old_cycle", c.snap.Cycle, "cycle", cycle)
	}
	c.snap = snap
	c.builds++
	return snap, nil
}

// Builds is the number of times the view was computed.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// EndSites returns the entries of deviceID whose latest-cycle record itself
// resolved a site outside the managed fleet. Neighbors carried over from older
// cycles do not count.
func (c *Cache) EndSites(ctx context.Context, deviceID int64) ([]Entry, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range snap.Entries {
		// The overlay comes from the latest record exactly when
		// NeighborCycle == Cycle.
		if e.DeviceID != deviceID || e.NeighborCycle != e.Cycle {
			continue
		}
		if e.NeighborSiteID != nil && e.NeighborDeviceID == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

type linkKey struct {
	device int64
	name   string
}

func (c *Cache) build(ctx context.Context, cycle int) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{Cycle: cycle, BuiltAt: start.UTC()}
	if cycle < 1 {
		return snap, nil
	}

	latest, err := c.store.LinksByCycle(ctx, cycle)
	if err != nil {
		return nil, fmt.Errorf("topology: links of cycle %d: %w", cycle, err)
	}
	history, err := c.store.LinksWithNeighbor(ctx)
	if err != nil {
		return nil, fmt.Errorf("topology: neighbor history: %w", err)
	}

	// Most recent neighbor-bearing link per key, ignoring cycles still being
	// written.
	best := make(map[linkKey]models.Link)
	for _, l := range history {
		if l.CrawlCycle > cycle || !l.HasNeighbor() {
			continue
		}
		k := linkKey{l.DeviceID, l.Name}
		if prev, ok := best[k]; !ok || l.CrawlCycle > prev.CrawlCycle {
			best[k] = l
		}
	}

	snap.Entries = make([]Entry, 0, len(latest))
	for _, l := range latest {
		e := Entry{Link: l, Cycle: l.CrawlCycle}
		if n, ok := best[linkKey{l.DeviceID, l.Name}]; ok {
			e.NeighborIP = n.NeighborIP
			e.NeighborDeviceID = n.NeighborDeviceID
			e.NeighborSiteID = n.NeighborSiteID
			e.NeighborCycle = n.CrawlCycle
		}
		snap.Entries = append(snap.Entries, e)
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		a, b := snap.Entries[i], snap.Entries[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Name < b.Name
	})

	c.logger.Info("topology: view built",
		"cycle", cycle,
		"entries", len(snap.Entries),
		"with_neighbor", len(best),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
