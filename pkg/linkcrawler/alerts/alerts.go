// Package alerts compares the links of two consecutive crawl cycles and
// raises one alert per monitored field that changed to an unhealthy value.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store"
)

// Monitored fields, in comparison order.
const (
	FieldPhysicalStatus = "physical_status"
	FieldProtocolStatus = "protocol_status"
	FieldMPLSLDP        = "mpls_ldp"
	FieldOSPF           = "ospf"
)

// Fields lists the monitored fields in comparison order.
var Fields = []string{FieldPhysicalStatus, FieldProtocolStatus, FieldMPLSLDP, FieldOSPF}

// TypeInfo is the category of a change back to a healthy value.
const TypeInfo = "info"

// Rule classifies an unhealthy change of one field.
type Rule struct {
	Type     string `yaml:"type"`
	Severity int    `yaml:"severity"`
}

// DefaultRules returns the built-in classification table.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		FieldPhysicalStatus: {Type: "Warning", Severity: 6},
		FieldProtocolStatus: {Type: "Warning", Severity: 6},
		FieldMPLSLDP:        {Type: "Error", Severity: 9},
		FieldOSPF:           {Type: "Error", Severity: 10},
	}
}

// Config is passed to New.
type Config struct {
	// Rules overrides DefaultRules per field.
	Rules map[string]Rule `yaml:"rules"`

	// EmitRecoveries also raises an info alert when a field returns to a
	// healthy value. Such changes appear in Details either way.
	EmitRecoveries bool `yaml:"emit_recoveries"`
}

// withDefaults fills missing rules from DefaultRules.
func (c *Config) withDefaults() {
	rules := DefaultRules()
	for f, r := range c.Rules {
		rules[f] = r
	}
	c.Rules = rules
}

// Detector raises alerts for a cycle.
type Detector struct {
	links   store.Links
	devices store.Devices
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Detector reading links and device names from the store.
func New(links store.Links, devices store.Devices, cfg Config, logger *slog.Logger) *Detector {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Detector{links: links, devices: devices, cfg: cfg, logger: logger, now: time.Now}
}

// Detect compares cycle with cycle-1. Nothing is compared before cycle 2.
func (d *Detector) Detect(ctx context.Context, cycle int) ([]models.Alert, error) {
	if cycle-1 < 1 {
		return nil, nil
	}
	cur, err := d.links.LinksByCycle(ctx, cycle)
	if err != nil {
		return nil, fmt.Errorf("alerts: links of cycle %d: %w", cycle, err)
	}
	prev, err := d.links.LinksByCycle(ctx, cycle-1)
	if err != nil {
		return nil, fmt.Errorf("alerts: links of cycle %d: %w", cycle-1, err)
	}

	names := make(map[int64]string)
	if d.devices != nil {
		devs, err := d.devices.ListDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("alerts: devices: %w", err)
		}
		for _, dev := range devs {
			names[dev.ID] = dev.Name
		}
	}

	out := Compare(prev, cur, names, cycle, d.cfg)
	now := d.now().UTC()
	for i := range out {
		out[i].CreatedAt = now
	}
	d.logger.Info("alerts: cycle compared",
		"cycle", cycle,
		"links", len(cur),
		"previous_links", len(prev),
		"alerts", len(out),
	)
	return out, nil
}

// Compare raises alerts for links present in both prev and cur. Links are
// matched on (device, interface name). Alerts are ordered by device, link
// and field.
func Compare(prev, cur []models.Link, deviceNames map[int64]string, cycle int, cfg Config) []models.Alert {
	cfg.withDefaults()
	type key struct {
		device int64
		name   string
	}
	before := make(map[key]models.Link, len(prev))
	for _, l := range prev {
		before[key{l.DeviceID, l.Name}] = l
	}

	sorted := append([]models.Link(nil), cur...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DeviceID != sorted[j].DeviceID {
			return sorted[i].DeviceID < sorted[j].DeviceID
		}
		return sorted[i].Name < sorted[j].Name
	})

	var out []models.Alert
	for _, l := range sorted {
		old, ok := before[key{l.DeviceID, l.Name}]
		if !ok {
			continue
		}
		changes := Changes(old, l, cfg.Rules)
		if len(changes) == 0 {
			continue
		}
		devName, ok := deviceNames[l.DeviceID]
		if !ok {
			devName = "Unknown"
		}
		for _, c := range changes {
			if c.AlertType == TypeInfo && !cfg.EmitRecoveries {
				continue
			}
			out = append(out, models.Alert{
				Type:          c.AlertType,
				Message:       fmt.Sprintf("Link %s on core device %s has changed: %s", l.Name, devName, c.Description),
				Source:        models.AlertSource,
				Link:          l.Name,
				SeverityScore: c.SeverityScore,
				Details:       changes,
				CrawlCycle:    cycle,
				DeviceID:      l.DeviceID,
				DeviceName:    devName,
			})
		}
	}
	return out
}

// Changes lists the monitored fields that differ between old and cur.
func Changes(old, cur models.Link, rules map[string]Rule) []models.Change {
	var out []models.Change
	for _, f := range Fields {
		o, n := fieldValue(old, f), fieldValue(cur, f)
		if o == n {
			continue
		}
		c := models.Change{
			Field:       f,
			OldValue:    o,
			NewValue:    n,
			AlertType:   TypeInfo,
			Description: fmt.Sprintf("%s changed from '%s' to '%s'", fieldLabel(f), o, n),
		}
		if !healthy(f, n) {
			r := rules[f]
			c.AlertType = r.Type
			c.SeverityScore = r.Severity
		}
		out = append(out, c)
	}
	return out
}

func fieldValue(l models.Link, field string) string {
	switch field {
	case FieldPhysicalStatus:
		return l.PhysicalStatus
	case FieldProtocolStatus:
		return l.ProtocolStatus
	case FieldMPLSLDP:
		return l.MPLSLDP
	case FieldOSPF:
		return l.OSPF
	}
	return ""
}

func healthy(field, value string) bool {
	if field == FieldOSPF {
		return strings.EqualFold(value, "full")
	}
	return strings.EqualFold(value, "up")
}

// fieldLabel renders "mpls_ldp" as "Mpls ldp".
func fieldLabel(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
