// Package trapreceiver listens for linkDown / linkUp traps and turns them into
// recrawl requests.
//
// The crawler itself pulls state from devices over SSH on a fixed interval.
// A link that flaps between two crawls is only noticed at the next tick; the
// receiver shortens that gap by emitting a LinkEvent for every link trap sent
// by a registered device. The caller decides what to do with it (cmd/linkcrawler
// triggers an early crawl).
//
// UDP port 162  →  [TrapReceiver]  →  chan trap.LinkEvent  →  scheduler.Trigger
package trapreceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/linkcrawler/snmp/trap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the TrapReceiver behaviour.
type Config struct {
	// ListenAddr is the UDP address to bind to (default "0.0.0.0:162").
	ListenAddr string

	// OutputBufferSize is the capacity of the output channel (default 256).
	OutputBufferSize int

	// Community is the SNMP community string for v1/v2c source validation.
	// If empty, all communities are accepted.
	Community string

	// SNMPVersion controls which SNMP version the listener accepts.
	// Defaults to gosnmp.Version2c.
	SNMPVersion gosnmp.SnmpVersion

	// CloseTimeout bounds the graceful close of the UDP socket (default 3 s).
	CloseTimeout time.Duration

	// ParseFunc replaces trap.Parse. Used in tests.
	ParseFunc ParseFunc

	// Known reports whether the agent address belongs to a registered device.
	// Events from unknown agents are dropped. Nil accepts every agent.
	Known func(ip string) bool
}

// ParseFunc is the signature of the trap-parsing function.
type ParseFunc func(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) (trap.LinkEvent, error)

func (c *Config) withDefaults() Config {
	out := *c
	if out.ListenAddr == "" {
		out.ListenAddr = "0.0.0.0:162"
	}
	if out.OutputBufferSize <= 0 {
		out.OutputBufferSize = 256
	}
	if out.SNMPVersion == 0 {
		out.SNMPVersion = gosnmp.Version2c
	}
	if out.CloseTimeout == 0 {
		out.CloseTimeout = 3 * time.Second
	}
	if out.ParseFunc == nil {
		out.ParseFunc = trap.Parse
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// TrapReceiver
// ─────────────────────────────────────────────────────────────────────────────

// TrapReceiver listens on UDP for SNMP traps and publishes the link events
// among them on its output channel.
type TrapReceiver struct {
	cfg    Config
	logger *slog.Logger

	output chan trap.LinkEvent

	listener *gosnmp.TrapListener

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// dropped is updated from the listener goroutine while Stop holds mu.
	dropped atomic.Uint64
}

// New creates a TrapReceiver with the given configuration.
func New(cfg Config, logger *slog.Logger) *TrapReceiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	return &TrapReceiver{
		cfg:    c,
		logger: logger,
		output: make(chan trap.LinkEvent, c.OutputBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Output returns the channel that delivers link events. It is closed when the
// receiver stops.
func (r *TrapReceiver) Output() <-chan trap.LinkEvent {
	return r.output
}

// ListenAddr returns the address the receiver is (or will be) listening on.
func (r *TrapReceiver) ListenAddr() string {
	return r.cfg.ListenAddr
}

// Dropped returns the number of events discarded because the output buffer
// was full.
func (r *TrapReceiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Start binds the listener and returns once it is ready, or with the bind
// error. The receiver stops when ctx is cancelled or Stop is called.
func (r *TrapReceiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("trapreceiver: already running")
	}
	r.running = true
	r.mu.Unlock()

	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version:   r.cfg.SNMPVersion,
		Community: r.cfg.Community,
		Logger:    gosnmp.NewLogger(slogAdapter{r.logger}),
	}
	tl.CloseTimeout = r.cfg.CloseTimeout
	tl.OnNewTrap = r.handleTrap

	r.listener = tl

	errCh := make(chan error, 1)
	go func() {
		defer close(r.doneCh)
		errCh <- tl.Listen(r.cfg.ListenAddr)
	}()

	select {
	case <-tl.Listening():
		r.logger.Info("trapreceiver: listening", "addr", r.cfg.ListenAddr)
	case err := <-errCh:
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("trapreceiver: listen %s: %w", r.cfg.ListenAddr, err)
	case <-ctx.Done():
		tl.Close()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.stopCh:
		}
	}()

	return nil
}

// Stop shuts down the UDP listener and closes the output channel. It is safe
// to call Stop multiple times.
func (r *TrapReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false

	if r.listener != nil {
		r.listener.Close()
	}
	close(r.stopCh)

	// The listen goroutine must exit before output is closed.
	<-r.doneCh
	close(r.output)

	r.logger.Info("trapreceiver: stopped", "dropped", r.dropped.Load())
}

// handleTrap runs on the gosnmp listener goroutine and must not block.
func (r *TrapReceiver) handleTrap(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	ev, err := r.cfg.ParseFunc(pkt, addr)
	if errors.Is(err, trap.ErrNotLinkEvent) {
		r.logger.Debug("trapreceiver: ignoring trap", "remote", addr, "trap_oid", ev.TrapOID)
		return
	}
	if err != nil {
		r.logger.Warn("trapreceiver: parse error", "remote", addr, "error", err)
		return
	}
	if r.cfg.Known != nil && !r.cfg.Known(ev.AgentIP) {
		r.logger.Debug("trapreceiver: trap from unregistered agent", "agent", ev.AgentIP)
		return
	}

	select {
	case r.output <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("trapreceiver: output buffer full, event dropped",
			"agent", ev.AgentIP,
			"kind", ev.Kind,
		)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

// slogAdapter bridges slog.Logger to gosnmp's Printf-style Logger interface.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) {
	a.l.Debug(fmt.Sprint(v...))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, v...))
}
