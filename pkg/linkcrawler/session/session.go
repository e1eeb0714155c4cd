// Package session runs CLI commands on network devices over SSH. Each
// command runs on its own exec channel of a per-device client and is bounded
// by a timeout; a command that outlives it has its channel closed and fails
// with ErrTimeout instead of blocking the worker.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("session: timeout")

// TimeoutError reports a command that did not complete in time.
type TimeoutError struct {
	Host    string
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session: %s: %q timed out after %s", e.Host, e.Command, e.After)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces
// ─────────────────────────────────────────────────────────────────────────────

// Session is an open connection to one device. It is not shared between
// goroutines.
type Session interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, host string) (Session, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds SSH credentials and limits.
type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Port is the SSH port (default 22).
	Port int `yaml:"port"`

	// DialTimeout bounds TCP connect plus SSH handshake (default 15s).
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// CommandTimeout bounds one command round-trip (default 60s).
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// KnownHostsFile enables host key verification. Empty accepts any key.
	KnownHostsFile string `yaml:"known_hosts_file"`
}

func (c *Config) withDefaults() {
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SSHDialer
// ─────────────────────────────────────────────────────────────────────────────

// SSHDialer is the production Dialer.
type SSHDialer struct {
	cfg       Config
	clientCfg *ssh.ClientConfig
	logger    *slog.Logger
}

// NewDialer validates cfg and loads the known_hosts file if one is set.
func NewDialer(cfg Config, logger *slog.Logger) (*SSHDialer, error) {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Username == "" {
		return nil, errors.New("session: username is required")
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts_file
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("session: known hosts %s: %w", cfg.KnownHostsFile, err)
		}
		hostKey = cb
	}

	return &SSHDialer{
		cfg: cfg,
		clientCfg: &ssh.ClientConfig{
			User: cfg.Username,
			Auth: []ssh.AuthMethod{
				ssh.Password(cfg.Password),
				ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
					answers := make([]string, len(questions))
					for i := range answers {
						answers[i] = cfg.Password
					}
					return answers, nil
				}),
			},
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
		logger: logger,
	}, nil
}

// Dial connects to host (an IP or name, without port).
func (d *SSHDialer) Dial(ctx context.Context, host string) (Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.cfg.Port))

	dctx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}

	// The handshake does not take a context; bound it with a deadline.
	deadline, _ := dctx.Deadline()
	_ = conn.SetDeadline(deadline)
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, d.clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session: handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	d.logger.Debug("session: connected", "host", host)
	return &sshSession{
		host:    host,
		client:  ssh.NewClient(c, chans, reqs),
		timeout: d.cfg.CommandTimeout,
	}, nil
}

type sshSession struct {
	host    string
	client  *ssh.Client
	timeout time.Duration
}

type runResult struct {
	out string
	err error
}

// Run executes command and returns its standard output. A non-zero exit
// status is returned as an error alongside whatever output was produced.
func (s *sshSession) Run(ctx context.Context, command string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("session: %s: open channel: %w", s.host, err)
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout

	done := make(chan runResult, 1)
	go func() {
		err := sess.Run(command)
		done <- runResult{out: stdout.String(), err: err}
	}()

	start := time.Now()
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return r.out, fmt.Errorf("session: %s: %q: %w", s.host, command, r.err)
		}
		return r.out, nil
	case <-timer.C:
		_ = sess.Close()
		return "", &TimeoutError{Host: s.host, Command: command, After: s.timeout}
	case <-ctx.Done():
		_ = sess.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{Host: s.host, Command: command, After: time.Since(start).Round(time.Millisecond)}
		}
		return "", fmt.Errorf("session: %s: %q: %w", s.host, command, ctx.Err())
	}
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
