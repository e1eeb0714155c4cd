// Package models defines the core data structures shared across all layers of
// the link crawler. These types are the canonical in-memory form of crawled
// data; every other package depends on this package and nothing here depends
// on any other internal package.
package models

import "time"

// Device is one managed core device. The registry of devices is loaded once
// per crawl run and is read-only for the duration of that run.
type Device struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// LinkAttributes is the fused per-interface telemetry of one device. Every
// field is a raw string as reported by the device; an empty string means no
// command reported the value for this interface.
type LinkAttributes struct {
	Name                 string `json:"name"`
	PhysicalStatus       string `json:"physical_status"`
	ProtocolStatus       string `json:"protocol_status"`
	MPLSLDP              string `json:"mpls_ldp"`
	OSPF                 string `json:"ospf"`
	OSPFInterfaceAddress string `json:"ospf_interface_address"`
	Bandwidth            string `json:"bw"`
	Description          string `json:"description"`
	MediaType            string `json:"media_type"`
	CDP                  string `json:"cdp"`
	InputRate            string `json:"input_rate"`
	OutputRate           string `json:"output_rate"`
	TX                   string `json:"tx"`
	RX                   string `json:"rx"`
	MTU                  string `json:"mtu"`
	InputErrors          string `json:"input_errors"`
	OutputErrors         string `json:"output_errors"`
	CRC                  string `json:"crc"`
	InterfaceIP          string `json:"interface_ip"`
}

// Link is the persisted record of one interface of one device in one crawl
// cycle. (DeviceID, Name, CrawlCycle) is unique. Links are written once and
// never mutated.
type Link struct {
	ID       int64 `json:"id"`
	DeviceID int64 `json:"coredevice_id"`

	LinkAttributes

	// Neighbor identity as resolved through the external directories.
	// Any of these may be unset.
	NeighborIP       string `json:"neighbor_ip,omitempty"`
	NeighborDeviceID *int64 `json:"neighbor_coredevice_id,omitempty"`
	NeighborSiteID   *int64 `json:"neighbor_site_id,omitempty"`

	CrawlCycle int       `json:"crawler_cycle"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasNeighbor reports whether the link carries a resolved neighbor device or
// neighbor site.
func (l Link) HasNeighbor() bool {
	return l.NeighborDeviceID != nil || l.NeighborSiteID != nil
}

// Site is a logical container (location) that a neighbor belongs to. Names
// are unique.
type Site struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Topology    string `json:"topology,omitempty"`
	Description string `json:"description,omitempty"`
}

// Int64 returns a pointer to v. Handy for the optional identity fields of Link.
func Int64(v int64) *int64 { return &v }
