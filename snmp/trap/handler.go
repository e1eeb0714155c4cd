// Package trap turns received linkDown / linkUp notifications (RFC 2863) into
// LinkEvent values. It covers the protocol-level differences between v1 and
// v2c/v3 trap PDUs but has no knowledge of UDP socket management; that is
// handled by the trapreceiver package.
package trap

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Well-known OID constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	// oidSnmpTrapOID is snmpTrapOID.0, whose value is the trap OID in v2c/v3
	// PDUs.
	oidSnmpTrapOID = ".1.3.6.1.6.3.1.1.4.1.0"

	OIDLinkDown = ".1.3.6.1.6.3.1.1.5.3"
	OIDLinkUp   = ".1.3.6.1.6.3.1.1.5.4"

	oidIfIndex = ".1.3.6.1.2.1.2.2.1.1."
	oidIfDescr = ".1.3.6.1.2.1.2.2.1.2."
	oidIfName  = ".1.3.6.1.2.1.31.1.1.1.1."
)

// Event kinds.
const (
	KindDown = "down"
	KindUp   = "up"
)

// ErrNotLinkEvent is returned for well-formed traps that are neither linkDown
// nor linkUp.
var ErrNotLinkEvent = errors.New("trap: not a link event")

// LinkEvent is one linkDown or linkUp notification.
type LinkEvent struct {
	Time    time.Time
	AgentIP string
	Version string
	Kind    string
	TrapOID string

	// IfIndex is 0 when the PDU carries no ifIndex varbind.
	IfIndex int

	// Interface is ifName when present, otherwise ifDescr.
	Interface string
}

// ─────────────────────────────────────────────────────────────────────────────
// Parse — main entry point
// ─────────────────────────────────────────────────────────────────────────────

// Parse converts a packet received by a TrapListener into a LinkEvent.
// remoteAddr is the source UDP address of the sender; for v1 the agent
// address field of the PDU wins when set.
func Parse(pkt *gosnmp.SnmpPacket, remoteAddr *net.UDPAddr) (LinkEvent, error) {
	if pkt == nil {
		return LinkEvent{}, fmt.Errorf("trap: nil packet")
	}

	ev := LinkEvent{
		Time:    time.Now().UTC(),
		AgentIP: agentIP(pkt, remoteAddr),
		Version: snmpVersionString(pkt.Version),
	}

	var payload []gosnmp.SnmpPDU
	switch pkt.Version {
	case gosnmp.Version1:
		ev.TrapOID = v1TrapOID(pkt)
		payload = pkt.Variables
	case gosnmp.Version2c, gosnmp.Version3:
		oid, rest, ok := v2TrapOID(pkt)
		if !ok {
			return ev, fmt.Errorf("trap: no snmpTrapOID.0 varbind")
		}
		ev.TrapOID = oid
		payload = rest
	default:
		return ev, fmt.Errorf("trap: unsupported SNMP version %v", pkt.Version)
	}

	switch ev.TrapOID {
	case OIDLinkDown:
		ev.Kind = KindDown
	case OIDLinkUp:
		ev.Kind = KindUp
	default:
		return ev, fmt.Errorf("%w: %s", ErrNotLinkEvent, ev.TrapOID)
	}

	var descr, name string
	for _, pdu := range payload {
		oid := normaliseOID(pdu.Name)
		switch {
		case strings.HasPrefix(oid, oidIfIndex):
			ev.IfIndex = int(gosnmp.ToBigInt(pdu.Value).Int64())
		case strings.HasPrefix(oid, oidIfDescr):
			descr = octetString(pdu)
		case strings.HasPrefix(oid, oidIfName):
			name = octetString(pdu)
		}
		if ev.IfIndex == 0 {
			ev.IfIndex = indexSuffix(oid)
		}
	}
	ev.Interface = name
	if ev.Interface == "" {
		ev.Interface = descr
	}
	return ev, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Agent address
// ─────────────────────────────────────────────────────────────────────────────

func agentIP(pkt *gosnmp.SnmpPacket, remoteAddr *net.UDPAddr) string {
	if pkt.Version == gosnmp.Version1 && pkt.AgentAddress != "" {
		return pkt.AgentAddress
	}
	if remoteAddr != nil {
		return remoteAddr.IP.String()
	}
	return ""
}

func snmpVersionString(v gosnmp.SnmpVersion) string {
	switch v {
	case gosnmp.Version1:
		return "1"
	case gosnmp.Version2c:
		return "2c"
	case gosnmp.Version3:
		return "3"
	default:
		return "unknown"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Trap OID
// ─────────────────────────────────────────────────────────────────────────────

// v1TrapOID synthesises the v2 trap OID from a v1 PDU (RFC 3584 §3.1):
//
//	generic 0-5  → .1.3.6.1.6.3.1.1.5.<generic+1>
//	generic 6    → <enterprise>.0.<specific>
func v1TrapOID(pkt *gosnmp.SnmpPacket) string {
	if pkt.GenericTrap >= 0 && pkt.GenericTrap < 6 {
		return fmt.Sprintf(".1.3.6.1.6.3.1.1.5.%d", pkt.GenericTrap+1)
	}
	return fmt.Sprintf("%s.0.%d", normaliseOID(pkt.Enterprise), pkt.SpecificTrap)
}

// v2TrapOID locates snmpTrapOID.0 and returns its value and the varbinds
// after it. It searches rather than assuming position 2 to tolerate agents
// that omit sysUpTime.0.
func v2TrapOID(pkt *gosnmp.SnmpPacket) (string, []gosnmp.SnmpPDU, bool) {
	for i, v := range pkt.Variables {
		if normaliseOID(v.Name) == oidSnmpTrapOID {
			return normaliseOID(fmt.Sprintf("%v", v.Value)), pkt.Variables[i+1:], true
		}
	}
	return "", nil, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// normaliseOID ensures an OID string starts with a leading dot and has no
// trailing dots.
func normaliseOID(oid string) string {
	oid = strings.TrimSpace(oid)
	if oid == "" {
		return ""
	}
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return strings.TrimSuffix(oid, ".")
}

// indexSuffix returns the ifIndex instance suffix of an ifTable or ifXTable
// column OID, or 0.
func indexSuffix(oid string) int {
	for _, col := range []string{oidIfDescr, oidIfName, ".1.3.6.1.2.1.2.2.1.7.", ".1.3.6.1.2.1.2.2.1.8."} {
		if rest, ok := strings.CutPrefix(oid, col); ok {
			if n, err := strconv.Atoi(rest); err == nil {
				return n
			}
		}
	}
	return 0
}

func octetString(pdu gosnmp.SnmpPDU) string {
	if b, ok := pdu.Value.([]byte); ok && isPrintable(b) {
		return string(b)
	}
	if s, ok := pdu.Value.(string); ok {
		return s
	}
	return ""
}

// isPrintable returns true if all bytes in b are printable ASCII (0x20–0x7e)
// or common whitespace.
func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
		if c > 0x7e {
			return false
		}
	}
	return true
}
