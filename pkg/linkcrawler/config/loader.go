// Package config loads the linkcrawler configuration.
//
// Three locations are read, each driven by an environment variable:
//
//	LINKCRAWLER_ENV_FILE     → .env file exported into the environment
//	LINKCRAWLER_CONFIG       → main YAML file
//	LINKCRAWLER_DEVICES_DIR  → directory of device YAML files
//
// Environment variables then override the alert rules and SSH credentials.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/alerts"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Paths holds the location of every configuration source.
type Paths struct {
	EnvFile string // LINKCRAWLER_ENV_FILE
	Config  string // LINKCRAWLER_CONFIG
	Devices string // LINKCRAWLER_DEVICES_DIR
}

// PathsFromEnv reads each path from its environment variable, falling back to
// the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		EnvFile: envOr("LINKCRAWLER_ENV_FILE", ".env"),
		Config:  envOr("LINKCRAWLER_CONFIG", "/etc/linkcrawler/config.yml"),
		Devices: envOr("LINKCRAWLER_DEVICES_DIR", "/etc/linkcrawler/devices"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads every source named by paths and returns the resolved Config.
// Errors are accumulated and returned together so that operators see all
// problems at once.
//
// A missing .env file, config file or devices directory is not an error; the
// corresponding section keeps its defaults.
func Load(paths Paths, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var errs []string

	// 1. .env ————————————————————————————————————————————————————————————————
	if err := loadEnvFile(paths.EnvFile, logger); err != nil {
		errs = append(errs, err.Error())
	}

	// 2. Main file ———————————————————————————————————————————————————————————
	raw, err := loadMain(paths.Config, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg := raw.Config

	// 3. Devices —————————————————————————————————————————————————————————————
	fromDir, err := loadDevices(paths.Devices, logger)
	if err != nil {
		errs = append(errs, err.Error())
	}
	devices, err := mergeDevices(raw.Devices, fromDir)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.Devices = devices

	// 4. Environment overrides ———————————————————————————————————————————————
	if err := applyEnv(&cfg); err != nil {
		errs = append(errs, err.Error())
	}

	// 5. Validation ——————————————————————————————————————————————————————————
	cfg.withDefaults()
	errs = append(errs, validate(&cfg)...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	logger.Info("config: loaded",
		"file", paths.Config,
		"devices", len(cfg.Devices),
		"workers", cfg.Crawl.Workers,
		"interval", cfg.Crawl.Interval.String(),
	)
	return &cfg, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sources
// ─────────────────────────────────────────────────────────────────────────────

// loadEnvFile exports the variables of path. Variables already present in
// the environment win.
func loadEnvFile(path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	logger.Debug("config: loaded env file", "file", path)
	return nil
}

func loadMain(path string, logger *slog.Logger) (rawFile, error) {
	var raw rawFile
	if path == "" {
		return raw, nil
	}
	if err := decodeFile(path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("config: no config file, using defaults", "file", path)
			return rawFile{}, nil
		}
		return rawFile{}, fmt.Errorf("decode %q: %w", path, err)
	}
	logger.Debug("config: loaded config file", "file", path)
	return raw, nil
}

// rawDeviceFile maps device name → entry.
type rawDeviceFile map[string]struct {
	IP string `yaml:"ip"`
}

func loadDevices(dir string, logger *slog.Logger) ([]rawDevice, error) {
	if dir == "" {
		return nil, nil
	}
	files, err := yamlFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list devices dir %q: %w", dir, err)
	}

	var out []rawDevice
	for _, path := range files {
		var raw rawDeviceFile
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed device file", "file", path, "error", err.Error())
			continue
		}
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, rawDevice{Name: name, IP: raw[name].IP})
		}
		logger.Debug("config: loaded device file", "file", path, "count", len(raw))
	}
	return out, nil
}

// mergeDevices validates both device lists and returns them as one, sorted by
// name. An IP may appear only once.
func mergeDevices(inline, fromDir []rawDevice) ([]models.Device, error) {
	var (
		out  []models.Device
		bad  []string
		seen = make(map[string]string)
	)
	for _, d := range append(append([]rawDevice(nil), inline...), fromDir...) {
		switch {
		case d.Name == "":
			bad = append(bad, fmt.Sprintf("device with ip %q has no name", d.IP))
			continue
		case net.ParseIP(d.IP) == nil:
			bad = append(bad, fmt.Sprintf("device %s: invalid ip %q", d.Name, d.IP))
			continue
		}
		if other, ok := seen[d.IP]; ok {
			bad = append(bad, fmt.Sprintf("device %s: ip %s already used by %s", d.Name, d.IP, other))
			continue
		}
		seen[d.IP] = d.Name
		out = append(out, models.Device{Name: d.Name, IP: d.IP})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(bad) > 0 {
		return out, errors.New(strings.Join(bad, "; "))
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment overrides
// ─────────────────────────────────────────────────────────────────────────────

// ruleEnv maps each alert field to its environment prefixes, most specific
// first. KPLS_LDP is the historical spelling of MPLS_LDP.
var ruleEnv = []struct {
	field    string
	prefixes []string
}{
	{alerts.FieldPhysicalStatus, []string{"PHYSICAL_STATUS"}},
	{alerts.FieldProtocolStatus, []string{"PROTOCOL_STATUS"}},
	{alerts.FieldMPLSLDP, []string{"MPLS_LDP", "KPLS_LDP"}},
	{alerts.FieldOSPF, []string{"OSPF"}},
}

func applyEnv(cfg *Config) error {
	var bad []string

	rules := alerts.DefaultRules()
	for f, r := range cfg.Alerts.Rules {
		rules[f] = r
	}
	for _, re := range ruleEnv {
		r := rules[re.field]
		if v, _ := firstEnv(re.prefixes, "_TYPE"); v != "" {
			r.Type = v
		}
		if v, key := firstEnv(re.prefixes, "_SEVERITY"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				bad = append(bad, fmt.Sprintf("%s: invalid severity %q", key, v))
			} else {
				r.Severity = n
			}
		}
		rules[re.field] = r
	}
	cfg.Alerts.Rules = rules

	if v := os.Getenv("LINKCRAWLER_SSH_USERNAME"); v != "" {
		cfg.SSH.Username = v
	}
	if v := os.Getenv("LINKCRAWLER_SSH_PASSWORD"); v != "" {
		cfg.SSH.Password = v
	}

	if len(bad) > 0 {
		return errors.New(strings.Join(bad, "; "))
	}
	return nil
}

// firstEnv returns the first non-empty prefix+suffix variable and its name.
func firstEnv(prefixes []string, suffix string) (string, string) {
	for _, p := range prefixes {
		key := p + suffix
		if v := os.Getenv(key); v != "" {
			return v, key
		}
	}
	return "", ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func validate(cfg *Config) []string {
	var errs []string
	if cfg.SNMP.Enabled {
		switch cfg.SNMP.Version {
		case "", "1", "2c", "3":
		default:
			errs = append(errs, fmt.Sprintf("snmp.version: unsupported %q", cfg.SNMP.Version))
		}
		if cfg.SNMP.Version == "3" && cfg.SNMP.V3.Username == "" {
			errs = append(errs, "snmp.v3.username: required for version 3")
		}
	}
	for f, r := range cfg.Alerts.Rules {
		if r.Type == "" {
			errs = append(errs, fmt.Sprintf("alerts.rules.%s: type is required", f))
		}
	}
	if cfg.Directory.Trino.URL != "" && cfg.Directory.Trino.Table == "" {
		errs = append(errs, "directory.trino.table: required with directory.trino.url")
	}
	if cfg.Traps.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Traps.ListenAddr); err != nil {
			errs = append(errs, fmt.Sprintf("traps.listen_addr: %v", err))
		}
	}
	if cfg.Journal.MaxBytes < 0 {
		errs = append(errs, "journal.max_bytes: must not be negative")
	}
	if cfg.Journal.MaxCycles < 0 {
		errs = append(errs, "journal.max_cycles: must not be negative")
	}
	return errs
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out. An empty
// file leaves out untouched.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
