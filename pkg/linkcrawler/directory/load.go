package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retries of a directory load.
type RetryConfig struct {
	// MaxRetries after the first attempt. Default 2.
	MaxRetries int `yaml:"max_retries"`
	// InitialInterval before the first retry. Default 8s.
	InitialInterval time.Duration `yaml:"initial_interval"`
	// MaxInterval caps the growth of the wait. Default 30s.
	MaxInterval time.Duration `yaml:"max_interval"`
}

func (c *RetryConfig) withDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 8 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

// Loader builds snapshots from the two sources, retrying transport errors
// with bounded exponential backoff.
type Loader struct {
	ips       IPSource
	locations LocationSource
	retry     RetryConfig
	logger    *slog.Logger
}

// NewLoader returns a Loader. A nil source yields empty snapshots.
func NewLoader(ips IPSource, locations LocationSource, retry RetryConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	retry.withDefaults()
	return &Loader{ips: ips, locations: locations, retry: retry, logger: logger}
}

// LoadIPs loads and indexes the IP directory.
func (l *Loader) LoadIPs(ctx context.Context) (*IPSnapshot, error) {
	if l.ips == nil {
		return NewIPSnapshot(nil), nil
	}
	var entries []IPEntry
	err := l.withRetry(ctx, "ip", func() error {
		var err error
		entries, err = l.ips.LoadIPs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	snap := NewIPSnapshot(entries)
	l.logger.Info("directory: ip directory loaded", "rows", len(entries), "interfaces", snap.Len())
	return snap, nil
}

// LoadLocations loads the location directory.
func (l *Loader) LoadLocations(ctx context.Context) (*LocationSnapshot, error) {
	if l.locations == nil {
		return NewLocationSnapshot(nil), nil
	}
	var entries []LocationEntry
	err := l.withRetry(ctx, "location", func() error {
		var err error
		entries, err = l.locations.LoadLocations(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	snap := NewLocationSnapshot(entries)
	l.logger.Info("directory: location directory loaded", "entries", snap.Len())
	return snap, nil
}

func (l *Loader) withRetry(ctx context.Context, name string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.retry.InitialInterval
	eb.MaxInterval = l.retry.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.retry.MaxRetries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, b, func(err error, wait time.Duration) {
		l.logger.Warn("directory: load failed, retrying",
			"directory", name,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
	})
	if err != nil {
		return fmt.Errorf("directory: load %s directory after %d attempt(s): %w", name, attempt, err)
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
