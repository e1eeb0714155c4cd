// Package directory loads the two external directories neighbor resolution
// depends on, and exposes them as read-only in-memory snapshots:
//
//   - the IP directory maps an interface IP learned over OSPF to the remote
//     device's management IP and hostname;
//   - the location directory maps a management IP to zero or more site names.
//
// Snapshots are loaded once per crawl run and shared, unlocked, by every
// device worker of that run.
package directory

import (
	"context"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// IP directory
// ─────────────────────────────────────────────────────────────────────────────

// IPEntry is one IP-directory row.
type IPEntry struct {
	InterfaceIP  string `yaml:"interface_ip"`
	ManagementIP string `yaml:"management_ip"`
	Hostname     string `yaml:"hostname"`
}

// IPSource loads the IP directory, most recent rows first.
type IPSource interface {
	LoadIPs(ctx context.Context) ([]IPEntry, error)
}

// IPSnapshot is an immutable interface-IP index.
type IPSnapshot struct {
	byInterface map[string]IPEntry
}

// NewIPSnapshot indexes entries by interface IP. Entries are expected newest
// first; the first entry for an interface IP wins.
func NewIPSnapshot(entries []IPEntry) *IPSnapshot {
	idx := make(map[string]IPEntry, len(entries))
	for _, e := range entries {
		if e.InterfaceIP == "" {
			continue
		}
		if _, ok := idx[e.InterfaceIP]; !ok {
			idx[e.InterfaceIP] = e
		}
	}
	return &IPSnapshot{byInterface: idx}
}

// Lookup returns the entry for interfaceIP. A nil snapshot matches nothing.
func (s *IPSnapshot) Lookup(interfaceIP string) (IPEntry, bool) {
	if s == nil || interfaceIP == "" {
		return IPEntry{}, false
	}
	e, ok := s.byInterface[interfaceIP]
	return e, ok
}

// Len is the number of indexed interface IPs.
func (s *IPSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byInterface)
}

// ─────────────────────────────────────────────────────────────────────────────
// Location directory
// ─────────────────────────────────────────────────────────────────────────────

// LocationEntry is one asset-inventory model: a management address and its
// location path ("Universe:Region:SITE-A").
type LocationEntry struct {
	Address  string `yaml:"address"`
	Location string `yaml:"location"`
}

// LocationSource loads the location directory.
type LocationSource interface {
	LoadLocations(ctx context.Context) ([]LocationEntry, error)
}

// LocationSnapshot is an immutable list of location entries.
type LocationSnapshot struct {
	entries []LocationEntry
}

// NewLocationSnapshot wraps entries. Entries with an empty address or
// location are dropped.
func NewLocationSnapshot(entries []LocationEntry) *LocationSnapshot {
	kept := make([]LocationEntry, 0, len(entries))
	for _, e := range entries {
		if e.Address == "" || e.Location == "" {
			continue
		}
		kept = append(kept, e)
	}
	return &LocationSnapshot{entries: kept}
}

// Sites returns the distinct site names for ip in directory order. The site
// name is the last ':'-separated segment of the location. A three-octet ip
// ("10.20.30") matches every address in that /24.
func (s *LocationSnapshot) Sites(ip string) []string {
	if s == nil || ip == "" {
		return nil
	}
	prefix := ""
	if strings.Count(ip, ".") == 2 {
		prefix = ip + "."
	}

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, e := range s.entries {
		match := e.Address == ip
		if prefix != "" {
			match = strings.HasPrefix(e.Address, prefix)
		}
		if !match {
			continue
		}
		site := SiteName(e.Location)
		if site == "" {
			continue
		}
		if _, dup := seen[site]; dup {
			continue
		}
		seen[site] = struct{}{}
		out = append(out, site)
	}
	return out
}

// Len is the number of entries.
func (s *LocationSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// SiteName extracts the site from a location path.
func SiteName(location string) string {
	if i := strings.LastIndexByte(location, ':'); i >= 0 {
		location = location[i+1:]
	}
	return strings.TrimSpace(location)
}

// ─────────────────────────────────────────────────────────────────────────────
// Static sources
// ─────────────────────────────────────────────────────────────────────────────

// StaticIPs is an IPSource backed by a fixed list (configuration or tests).
type StaticIPs []IPEntry

func (s StaticIPs) LoadIPs(context.Context) ([]IPEntry, error) {
	return append([]IPEntry(nil), s...), nil
}

// StaticLocations is a LocationSource backed by a fixed list.
type StaticLocations []LocationEntry

func (s StaticLocations) LoadLocations(context.Context) ([]LocationEntry, error) {
	return append([]LocationEntry(nil), s...), nil
}
