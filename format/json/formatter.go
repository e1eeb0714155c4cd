// Package json serialises alerts for the alert journal.
//
// Pipeline position:
//
//	alerts.Detector → format/json → transport/file
//
// All json struct tags are declared on models.Alert itself, so serialisation
// is a single json.Marshal call with optional indentation. The field names
// match the alert table of the store (network_line, crawl_number, …) so a
// journal line can be replayed into it.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/linkcrawler/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a models.Alert into a byte slice.
type Formatter interface {
	Format(alert *models.Alert) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true. Journal
	// files need one alert per line, so leave it off there.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises alert to JSON:
//
//	{
//	  "id": 0,
//	  "type": "Warning",
//	  "message": "Link Gi0/0/0/1 on core device core-a has changed: …",
//	  "source": "crawler",
//	  "network_line": "Gi0/0/0/1",
//	  "severity_score": 6,
//	  "details": [ { "column": "physical_status", "old_value": "up", … } ],
//	  "crawl_number": 12,
//	  "coredevice_id": 1,
//	  "coredevice_name": "core-a",
//	  "timestamp": "2026-10-19T10:30:00Z"
//	}
func (f *JSONFormatter) Format(alert *models.Alert) ([]byte, error) {
	if alert == nil {
		return nil, fmt.Errorf("format/json: alert must not be nil")
	}

	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(alert, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(alert)
	}
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"link", alert.Link,
			"device", alert.DeviceName,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted alert",
		"link", alert.Link,
		"device", alert.DeviceName,
		"cycle", alert.CrawlCycle,
		"bytes", len(data),
	)
	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
