// Package resolver turns the OSPF interface address learned on a local link
// into the identity of the remote end: a known core device, a site, or both.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/store"
)

// Config holds the per-run inputs of a Resolver. Snapshots are shared
// read-only between workers.
type Config struct {
	IPs       *directory.IPSnapshot
	Locations *directory.LocationSnapshot
	Devices   []models.Device
	Sites     store.Sites
	Logger    *slog.Logger
}

// Resolution is the outcome for one link. A zero Resolution means no
// neighbor could be resolved.
type Resolution struct {
	NeighborIP       string
	Hostname         string
	NeighborDeviceID *int64
	NeighborSiteID   *int64
	SiteName         string

	// SiteCandidates lists every site the location directory returned when
	// there was more than one.
	SiteCandidates []string
}

// Apply copies the resolved identity onto l.
func (r Resolution) Apply(l *models.Link) {
	l.NeighborIP = r.NeighborIP
	l.NeighborDeviceID = r.NeighborDeviceID
	l.NeighborSiteID = r.NeighborSiteID
}

// Resolver is safe for concurrent use.
type Resolver struct {
	ips       *directory.IPSnapshot
	locations *directory.LocationSnapshot
	byIP      map[string]int64
	sites     store.Sites
	logger    *slog.Logger

	mu       sync.Mutex
	siteIDs  map[string]int64
	attached map[[2]int64]struct{}
}

// New builds a Resolver from cfg.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	byIP := make(map[string]int64, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.IP != "" {
			byIP[d.IP] = d.ID
		}
	}
	return &Resolver{
		ips:       cfg.IPs,
		locations: cfg.Locations,
		byIP:      byIP,
		sites:     cfg.Sites,
		logger:    logger,
		siteIDs:   make(map[string]int64),
		attached:  make(map[[2]int64]struct{}),
	}
}

// Resolve looks up the neighbor of one link of deviceID. Misses and store
// failures leave the corresponding fields blank; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, deviceID int64, attrs models.LinkAttributes) Resolution {
	var res Resolution
	entry, ok := r.ips.Lookup(attrs.OSPFInterfaceAddress)
	if !ok || entry.ManagementIP == "" {
		return res
	}
	res.NeighborIP = entry.ManagementIP
	res.Hostname = entry.Hostname

	if id, ok := r.byIP[entry.ManagementIP]; ok {
		res.NeighborDeviceID = models.Int64(id)
	}

	sites := r.locations.Sites(entry.ManagementIP)
	if len(sites) == 0 {
		return res
	}
	res.SiteName = sites[0]
	if len(sites) > 1 {
		res.SiteCandidates = sites
		r.logger.Warn("resolver: ambiguous site, using first",
			"device_id", deviceID,
			"link", attrs.Name,
			"neighbor_ip", entry.ManagementIP,
			"candidates", sites,
		)
	}

	if r.sites == nil {
		return res
	}
	siteID, err := r.siteID(ctx, res.SiteName)
	if err != nil {
		r.logger.Warn("resolver: site lookup failed",
			"site", res.SiteName,
			"error", err.Error(),
		)
		return res
	}
	res.NeighborSiteID = models.Int64(siteID)
	r.attach(ctx, siteID, deviceID)
	return res
}

// siteID gets or creates the named site. A conflict on create means a
// concurrent worker won the race; the site is re-read.
func (r *Resolver) siteID(ctx context.Context, name string) (int64, error) {
	r.mu.Lock()
	id, ok := r.siteIDs[name]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	site, err := r.sites.SiteByName(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		site, err = r.sites.CreateSite(ctx, models.Site{Name: name})
		if errors.Is(err, store.ErrConflict) {
			site, err = r.sites.SiteByName(ctx, name)
		} else if err == nil {
			r.logger.Info("resolver: site created", "site", name, "site_id", site.ID)
		}
		if err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	r.mu.Lock()
	r.siteIDs[name] = site.ID
	r.mu.Unlock()
	return site.ID, nil
}

func (r *Resolver) attach(ctx context.Context, siteID, deviceID int64) {
	key := [2]int64{siteID, deviceID}
	r.mu.Lock()
	_, done := r.attached[key]
	r.mu.Unlock()
	if done {
		return
	}
	if err := r.sites.AttachSite(ctx, siteID, deviceID); err != nil {
		r.logger.Warn("resolver: attach site failed",
			"site_id", siteID,
			"device_id", deviceID,
			"error", err.Error(),
		)
		return
	}
	r.mu.Lock()
	r.attached[key] = struct{}{}
	r.mu.Unlock()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
