package config

import (
	"time"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/alerts"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/snmp/probe"
)

// Config is the fully parsed configuration. Durations are written in YAML as
// Go duration strings ("90s", "15m").
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	SSH       session.Config  `yaml:"ssh"`
	SNMP      SNMPConfig      `yaml:"snmp"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Directory DirectoryConfig `yaml:"directory"`
	Alerts    alerts.Config   `yaml:"alerts"`
	Journal   JournalConfig   `yaml:"journal"`
	Traps     TrapConfig      `yaml:"traps"`

	// Devices is the seed registry: the inline list followed by every entry
	// of the devices directory, sorted by name.
	Devices []models.Device `yaml:"-"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	// Path of the database file (default /var/lib/linkcrawler/linkcrawler.db).
	Path string `yaml:"path"`
}

// SNMPConfig enables the reachability probe run before each SSH session.
type SNMPConfig struct {
	Enabled      bool `yaml:"enabled"`
	probe.Config `yaml:",inline"`
}

// CrawlConfig sizes and paces crawl runs.
type CrawlConfig struct {
	// Workers is the number of devices crawled concurrently (default 10).
	Workers int `yaml:"workers"`

	// Interval between scheduled runs (default 15m).
	Interval time.Duration `yaml:"interval"`

	// DeviceTimeout bounds one device end to end (default 5m).
	DeviceTimeout time.Duration `yaml:"device_timeout"`
}

// DirectoryConfig selects the IP and location directories. A configured
// remote source wins over the static list of the same kind.
type DirectoryConfig struct {
	Retry    directory.RetryConfig    `yaml:"retry"`
	Trino    directory.TrinoConfig    `yaml:"trino"`
	Spectrum directory.SpectrumConfig `yaml:"spectrum"`

	IPs       []directory.IPEntry       `yaml:"ips"`
	Locations []directory.LocationEntry `yaml:"locations"`
}

// JournalConfig controls the alert journal. An empty Path disables it. The
// active file holds the latest alerting cycle; older cycles are archived as
// <path>.<cycle>.
type JournalConfig struct {
	Path string `yaml:"path"`

	// RecoveryPath receives info alerts separately when set. Info alerts are
	// only raised with alerts.emit_recoveries.
	RecoveryPath string `yaml:"recovery_path"`

	// MaxBytes splits a cycle into numbered parts once the file reaches this
	// size. 0 disables splitting.
	MaxBytes int64 `yaml:"max_bytes"`

	// MaxCycles is the number of archived cycles kept. 0 keeps all.
	MaxCycles int `yaml:"max_cycles"`
}

// TrapConfig enables the link trap listener. Every linkDown or linkUp trap
// from a registered device requests an early crawl.
type TrapConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Community  string `yaml:"community"`
}

// rawFile is the YAML schema of the main configuration file.
type rawFile struct {
	Config  `yaml:",inline"`
	Devices []rawDevice `yaml:"devices"`
}

// rawDevice is one device of the inline list or of a devices file.
type rawDevice struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
}

func (c *Config) withDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = "/var/lib/linkcrawler/linkcrawler.db"
	}
	if c.Crawl.Workers <= 0 {
		c.Crawl.Workers = 10
	}
	if c.Crawl.Interval <= 0 {
		c.Crawl.Interval = 15 * time.Minute
	}
	if c.Crawl.DeviceTimeout <= 0 {
		c.Crawl.DeviceTimeout = 5 * time.Minute
	}
	if c.Traps.ListenAddr == "" {
		c.Traps.ListenAddr = "0.0.0.0:162"
	}
}
