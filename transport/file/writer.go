// Package file implements the alert journal: a Transport that appends one
// formatted alert per line to any io.Writer, typically a CycleFile or
// os.Stdout.
//
// Pipeline position:
//
//	format/json → transport/file
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Transport interface
// ─────────────────────────────────────────────────────────────────────────────

// Transport delivers one pre-formatted message (JSON bytes from format/json).
// Close flushes and releases resources.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. nil defaults to os.Stdout.
	Writer io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport writes each message followed by a newline. It is safe for
// concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	nl     []byte
	closer io.Closer
	logger *slog.Logger
}

// New constructs a WriterTransport. When cfg.Writer is an io.Closer other
// than os.Stdout or os.Stderr, Close closes it.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}
	t := &WriterTransport{
		w:      w,
		nl:     []byte(nl),
		logger: logger,
	}
	if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
		t.closer = c
	}
	return t
}

// Send writes data and the newline under one lock so concurrent senders
// never interleave lines.
func (t *WriterTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.Write(data); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	if _, err := t.w.Write(t.nl); err != nil {
		t.logger.Error("transport/file: newline write failed", "error", err.Error())
		return fmt.Errorf("transport/file: write newline: %w", err)
	}

	t.logger.Debug("transport/file: sent message", "bytes", len(data))
	return nil
}

// BeginCycle forwards to the writer when it is a CycleWriter.
func (t *WriterTransport) BeginCycle(cycle int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cw, ok := t.w.(CycleWriter); ok {
		return cw.BeginCycle(cycle)
	}
	return nil
}

// Close closes the underlying writer when New took ownership of it.
func (t *WriterTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
