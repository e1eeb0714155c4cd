// Package probe checks that a device answers SNMP before the crawler opens an
// SSH session to it. A device that does not answer sysName.0 and sysUpTime.0
// within the configured timeout is reported unreachable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Scalar OIDs fetched by Probe.
const (
	OIDSysName   = ".1.3.6.1.2.1.1.5.0"
	OIDSysUpTime = ".1.3.6.1.2.1.1.3.0"
)

// ErrUnreachable is wrapped by every Probe failure.
var ErrUnreachable = errors.New("probe: device unreachable")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the SNMP access shared by every device of the fleet.
type Config struct {
	// Version is "1", "2c" (default) or "3".
	Version string `yaml:"version"`

	// Port is the UDP port (default 161).
	Port int `yaml:"port"`

	// Community is used for v1/v2c.
	Community string `yaml:"community"`

	// V3 holds the USM credentials for v3.
	V3 V3Credentials `yaml:"v3"`

	// Timeout per request (default 3s).
	Timeout time.Duration `yaml:"timeout"`

	// Retries on timeout (default 1).
	Retries int `yaml:"retries"`

	ExponentialTimeout bool `yaml:"exponential_timeout"`
}

// V3Credentials holds a single set of SNMPv3 security parameters.
type V3Credentials struct {
	Username string `yaml:"username"`

	// AuthenticationProtocol is one of: noauth, md5, sha, sha224, sha256, sha384, sha512.
	AuthenticationProtocol   string `yaml:"authentication_protocol"`
	AuthenticationPassphrase string `yaml:"authentication_passphrase"`

	// PrivacyProtocol is one of: nopriv, des, aes, aes192, aes256, aes192c, aes256c.
	PrivacyProtocol   string `yaml:"privacy_protocol"`
	PrivacyPassphrase string `yaml:"privacy_passphrase"`
}

func (c *Config) withDefaults() {
	if c.Version == "" {
		c.Version = "2c"
	}
	if c.Port <= 0 {
		c.Port = 161
	}
	if c.Community == "" && c.Version != "3" {
		c.Community = "public"
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = 1
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Session factory: Config + target → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// NewSession creates and connects a gosnmp session for target. The caller
// closes it.
func NewSession(cfg Config, target string) (*gosnmp.GoSNMP, error) {
	cfg.withDefaults()
	g := &gosnmp.GoSNMP{
		Target:             target,
		Port:               uint16(cfg.Port),
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		ExponentialTimeout: cfg.ExponentialTimeout,
		MaxOids:            60,
	}

	switch cfg.Version {
	case "1":
		g.Version = gosnmp.Version1
		g.Community = cfg.Community
	case "2c":
		g.Version = gosnmp.Version2c
		g.Community = cfg.Community
	case "3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = snmpv3MsgFlags(cfg.V3)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.V3.Username,
			AuthenticationProtocol:   mapAuthProto(cfg.V3.AuthenticationProtocol),
			AuthenticationPassphrase: cfg.V3.AuthenticationPassphrase,
			PrivacyProtocol:          mapPrivProto(cfg.V3.PrivacyProtocol),
			PrivacyPassphrase:        cfg.V3.PrivacyPassphrase,
		}
	default:
		return nil, fmt.Errorf("probe: unsupported SNMP version %q", cfg.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("probe: snmp connect %s:%d: %w", target, cfg.Port, err)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Prober
// ─────────────────────────────────────────────────────────────────────────────

// Result is what a reachable device reported.
type Result struct {
	SysName string
	Uptime  time.Duration
	RTT     time.Duration
}

// Prober checks device reachability.
type Prober interface {
	Probe(ctx context.Context, ip string) (Result, error)
}

// SNMPProber is the production Prober.
type SNMPProber struct {
	cfg Config
}

// New returns an SNMPProber.
func New(cfg Config) *SNMPProber {
	cfg.withDefaults()
	return &SNMPProber{cfg: cfg}
}

// Probe fetches sysName.0 and sysUpTime.0 from ip.
func (p *SNMPProber) Probe(ctx context.Context, ip string) (Result, error) {
	var res Result
	g, err := NewSession(p.cfg, ip)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer g.Conn.Close()
	g.Context = ctx

	start := time.Now()
	pkt, err := g.Get([]string{OIDSysName, OIDSysUpTime})
	res.RTT = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrUnreachable, ip, err)
	}
	if pkt.Error != gosnmp.NoError {
		return res, fmt.Errorf("%w: %s: snmp error %s", ErrUnreachable, ip, pkt.Error)
	}

	for _, v := range pkt.Variables {
		switch strings.TrimPrefix(v.Name, ".") {
		case strings.TrimPrefix(OIDSysName, "."):
			if b, ok := v.Value.([]byte); ok {
				res.SysName = string(b)
			}
		case strings.TrimPrefix(OIDSysUpTime, "."):
			// TimeTicks are hundredths of a second.
			res.Uptime = time.Duration(gosnmp.ToBigInt(v.Value).Int64()) * 10 * time.Millisecond
		}
	}
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

func snmpv3MsgFlags(cred V3Credentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := cred.AuthenticationProtocol != "" &&
		!strings.EqualFold(cred.AuthenticationProtocol, "noauth")
	hasPriv := cred.PrivacyProtocol != "" &&
		!strings.EqualFold(cred.PrivacyProtocol, "nopriv")

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}
