package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vpbank/linkcrawler/pkg/linkcrawler/config"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/ui"
	"github.com/vpbank/linkcrawler/store/sqlite"
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	e := &env{v: v}

	root := &cobra.Command{
		Use:   "linkcrawler",
		Short: "Crawl core devices and track link state across crawl cycles",
		Long: `linkcrawler logs into each core device over SSH, decodes interface, optics,
CDP, OSPF and LDP output into one link record per interface, resolves the far
end of every link and raises alerts when a link changes state between cycles.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default: $LINKCRAWLER_CONFIG or /etc/linkcrawler/config.yml)")
	pf.String("devices-dir", "", "device definitions directory (default: /etc/linkcrawler/devices)")
	pf.String("env-file", "", "dotenv file loaded before the config (default: .env)")
	pf.String("store", "", "SQLite database path (overrides store.path)")
	pf.String("log.level", "info", "Log level: debug, info, warn, error")
	pf.String("log.fmt", "json", "Log format: json, text")

	root.AddCommand(
		newCrawlCmd(e),
		newAlertsCmd(e),
		newTopologyCmd(e),
		newExportCmd(e),
	)
	return root
}

// setup binds flags and environment, builds the logger and loads the config.
func (e *env) setup(cmd *cobra.Command) error {
	e.out = cmd.OutOrStdout()

	e.v.SetEnvPrefix("LINKCRAWLER")
	e.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	e.v.AutomaticEnv()
	if err := e.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := buildLogger(e.v.GetString("log.level"), e.v.GetString("log.fmt"))
	if err != nil {
		return err
	}
	e.logger = logger

	paths := config.PathsFromEnv()
	if p := e.v.GetString("config"); p != "" {
		paths.Config = p
	}
	if p := e.v.GetString("devices-dir"); p != "" {
		paths.Devices = p
	}
	if p := e.v.GetString("env-file"); p != "" {
		paths.EnvFile = p
	}

	cfg, err := config.Load(paths, logger)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.FormatError("Failed to load config", err.Error(), "check "+paths.Config))
		return err
	}
	if p := e.v.GetString("store"); p != "" {
		cfg.Store.Path = p
	}
	e.cfg = cfg
	return nil
}

func (e *env) openStore() (*sqlite.Store, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	st, err := sqlite.Open(e.cfg.Store.Path, e.logger)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
