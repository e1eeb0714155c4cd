package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	jsonformat "github.com/vpbank/linkcrawler/format/json"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/config"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/snmp/probe"
	"github.com/vpbank/linkcrawler/store"
	filetransport "github.com/vpbank/linkcrawler/transport/file"
)

// Assemble builds an App from a loaded configuration. The returned closer
// releases the journal and the directory connections; it does not close st.
func Assemble(cfg *config.Config, st store.Store, logger *slog.Logger) (*App, io.Closer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	var res resources

	// ── 1. SSH ──────────────────────────────────────────────────────────
	dialer, err := session.NewDialer(cfg.SSH, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: ssh: %w", err)
	}

	// ── 2. SNMP probe ───────────────────────────────────────────────────
	var prober probe.Prober
	if cfg.SNMP.Enabled {
		prober = probe.New(cfg.SNMP.Config)
	}

	// ── 3. Directories ──────────────────────────────────────────────────
	var ips directory.IPSource
	switch {
	case cfg.Directory.Trino.URL != "":
		db, err := directory.OpenTrino(cfg.Directory.Trino)
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		res.add(db)
		ips = directory.NewSQLIPSource(db, cfg.Directory.Trino.Table)
	case len(cfg.Directory.IPs) > 0:
		ips = directory.StaticIPs(cfg.Directory.IPs)
	}

	var locations directory.LocationSource
	switch {
	case cfg.Directory.Spectrum.URL != "":
		locations = directory.NewSpectrumSource(cfg.Directory.Spectrum, nil)
	case len(cfg.Directory.Locations) > 0:
		locations = directory.StaticLocations(cfg.Directory.Locations)
	}

	// ── 4. Alert journal ────────────────────────────────────────────────
	journal, err := openJournal(cfg.Journal, logger)
	if err != nil {
		res.Close()
		return nil, nil, err
	}
	if journal != nil {
		res.add(journal)
	}

	a := New(Config{
		Workers:       cfg.Crawl.Workers,
		DeviceTimeout: cfg.Crawl.DeviceTimeout,
		Seed:          cfg.Devices,
		Alerts:        cfg.Alerts,
	}, Deps{
		Store:       st,
		Dialer:      dialer,
		Prober:      prober,
		Directories: directory.NewLoader(ips, locations, cfg.Directory.Retry, logger),
		Journal:     journal,
		Formatter:   jsonformat.New(jsonformat.Config{}, logger),
	}, logger)

	logger.Info("app: assembled",
		"devices", len(cfg.Devices),
		"snmp_probe", cfg.SNMP.Enabled,
		"ip_directory", ips != nil,
		"location_directory", locations != nil,
		"journal", cfg.Journal.Path,
	)
	return a, &res, nil
}

// openJournal returns nil when no journal path is configured.
func openJournal(cfg config.JournalConfig, logger *slog.Logger) (filetransport.Transport, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	alertsW, err := openJournalFile(cfg.Path, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.RecoveryPath == "" {
		return filetransport.New(filetransport.Config{Writer: alertsW}, logger), nil
	}
	recoveryW, err := openJournalFile(cfg.RecoveryPath, cfg, logger)
	if err != nil {
		alertsW.Close()
		return nil, err
	}
	return filetransport.NewSplit(filetransport.SplitConfig{
		AlertWriter:    alertsW,
		RecoveryWriter: recoveryW,
	}, logger), nil
}

func openJournalFile(path string, cfg config.JournalConfig, logger *slog.Logger) (io.WriteCloser, error) {
	cf, err := filetransport.NewCycleFile(filetransport.CycleFileConfig{
		Path:      path,
		MaxBytes:  cfg.MaxBytes,
		MaxCycles: cfg.MaxCycles,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: journal: %w", err)
	}
	return cf, nil
}

// resources closes everything Assemble opened, in reverse order.
type resources struct {
	closers []io.Closer
}

func (r *resources) add(c io.Closer) { r.closers = append(r.closers, c) }

func (r *resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
