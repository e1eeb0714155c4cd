package models

import "time"

// AlertSource is the Source value stamped on every alert raised by a crawl.
const AlertSource = "crawler"

// Alert is one classified state transition on one link between two
// consecutive crawl cycles.
type Alert struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Source        string    `json:"source"`
	Link          string    `json:"network_line"`
	SeverityScore int       `json:"severity_score"`
	Details       []Change  `json:"details"`
	CrawlCycle    int       `json:"crawl_number"`
	DeviceID      int64     `json:"coredevice_id"`
	DeviceName    string    `json:"coredevice_name"`
	CreatedAt     time.Time `json:"timestamp"`
}

// Change is a single monitored field that differs between two cycles.
type Change struct {
	Field         string `json:"column"`
	OldValue      string `json:"old_value"`
	NewValue      string `json:"new_value"`
	AlertType     string `json:"alert_type"`
	SeverityScore int    `json:"severity_score"`
	Description   string `json:"description"`
}
