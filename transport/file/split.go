package file

// SplitWriterTransport keeps recovery alerts (type "info", a field returning
// to a healthy value, raised only with alerts.emit_recoveries) out of the
// actionable journal.
//
// Routing logic:
//   - compact JSON payloads carrying `"type":"info"` → recovery writer
//   - everything else → alert writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitConfig
// ─────────────────────────────────────────────────────────────────────────────

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// AlertWriter receives actionable alerts. nil defaults to os.Stdout.
	AlertWriter io.Writer

	// RecoveryWriter receives recovery alerts. nil discards them.
	RecoveryWriter io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// SplitWriterTransport routes each message to one of two writers. It is safe
// for concurrent use.
//
// Detection is a bytes.Contains on the top-level type key. Change entries use
// "alert_type", so they never match.
type SplitWriterTransport struct {
	alertMu    sync.Mutex
	recoveryMu sync.Mutex
	alertW     io.Writer
	recoveryW  io.Writer
	nl         []byte
	closers    []io.Closer
	logger     *slog.Logger
}

var recoveryMarker = []byte(`"type":"info"`)

// NewSplit constructs a SplitWriterTransport.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	aw := cfg.AlertWriter
	if aw == nil {
		aw = os.Stdout
	}
	rw := cfg.RecoveryWriter
	if rw == nil {
		rw = io.Discard
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}

	st := &SplitWriterTransport{
		alertW:    aw,
		recoveryW: rw,
		nl:        []byte(nl),
		logger:    logger,
	}
	for _, w := range []io.Writer{aw, rw} {
		if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
			st.closers = append(st.closers, c)
		}
	}
	return st
}

// Send routes data by its alert type.
func (st *SplitWriterTransport) Send(data []byte) error {
	if bytes.Contains(data, recoveryMarker) {
		return st.write(&st.recoveryMu, st.recoveryW, "recovery", data)
	}
	return st.write(&st.alertMu, st.alertW, "alert", data)
}

// BeginCycle forwards to both writers that are CycleWriters.
func (st *SplitWriterTransport) BeginCycle(cycle int) error {
	var errs []error
	for _, w := range []struct {
		mu *sync.Mutex
		w  io.Writer
	}{{&st.alertMu, st.alertW}, {&st.recoveryMu, st.recoveryW}} {
		cw, ok := w.w.(CycleWriter)
		if !ok {
			continue
		}
		w.mu.Lock()
		errs = append(errs, cw.BeginCycle(cycle))
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Close closes any io.Closer writers (e.g. CycleFile). os.Stdout and
// os.Stderr are never closed.
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, c := range st.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	st.closers = nil
	return firstErr
}

func (st *SplitWriterTransport) write(mu *sync.Mutex, w io.Writer, kind string, data []byte) error {
	mu.Lock()
	defer mu.Unlock()

	if _, err := w.Write(data); err != nil {
		st.logger.Error("transport/file: write failed",
			"kind", kind, "error", err.Error(), "bytes", len(data),
		)
		return fmt.Errorf("transport/file: %s write: %w", kind, err)
	}
	if _, err := w.Write(st.nl); err != nil {
		st.logger.Error("transport/file: newline write failed",
			"kind", kind, "error", err.Error(),
		)
		return fmt.Errorf("transport/file: %s write newline: %w", kind, err)
	}

	st.logger.Debug("transport/file: sent message", "kind", kind, "bytes", len(data))
	return nil
}
