package trap_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/linkcrawler/snmp/trap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

var testAddr = &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: 162}

// pdu builds a simple SnmpPDU for test inputs.
func pdu(name string, typ gosnmp.Asn1BER, value interface{}) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: typ, Value: value}
}

func v2Header(trapOID string) []gosnmp.SnmpPDU {
	return []gosnmp.SnmpPDU{
		pdu(".1.3.6.1.2.1.1.3.0", gosnmp.TimeTicks, uint32(5000)),
		pdu(".1.3.6.1.6.3.1.1.4.1.0", gosnmp.ObjectIdentifier, trapOID),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// v1
// ─────────────────────────────────────────────────────────────────────────────

func TestParse_V1_LinkDown(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version1,
		Community: "public",
		PDUType:   gosnmp.Trap,
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   "1.3.6.1.4.1.9",
			AgentAddress: "10.0.0.1",
			GenericTrap:  2, // linkDown
			Timestamp:    1234,
		},
		Variables: []gosnmp.SnmpPDU{
			pdu("1.3.6.1.2.1.2.2.1.1.5", gosnmp.Integer, 5),
			pdu("1.3.6.1.2.1.2.2.1.2.5", gosnmp.OctetString, []byte("GigabitEthernet0/0/0/5")),
		},
	}

	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Kind != trap.KindDown {
		t.Errorf("Kind = %q, want %q", ev.Kind, trap.KindDown)
	}
	if ev.TrapOID != trap.OIDLinkDown {
		t.Errorf("TrapOID = %q, want %q", ev.TrapOID, trap.OIDLinkDown)
	}
	if ev.AgentIP != "10.0.0.1" {
		t.Errorf("AgentIP = %q, want agent address over remote addr", ev.AgentIP)
	}
	if ev.Version != "1" {
		t.Errorf("Version = %q, want 1", ev.Version)
	}
	if ev.IfIndex != 5 {
		t.Errorf("IfIndex = %d, want 5", ev.IfIndex)
	}
	if ev.Interface != "GigabitEthernet0/0/0/5" {
		t.Errorf("Interface = %q", ev.Interface)
	}
}

func TestParse_V1_EnterpriseSpecific(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version1,
		PDUType: gosnmp.Trap,
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   "1.3.6.1.4.1.9.9.41.2",
			GenericTrap:  6,
			SpecificTrap: 1,
		},
	}

	ev, err := trap.Parse(pkt, testAddr)
	if !errors.Is(err, trap.ErrNotLinkEvent) {
		t.Fatalf("err = %v, want ErrNotLinkEvent", err)
	}
	if ev.TrapOID != ".1.3.6.1.4.1.9.9.41.2.0.1" {
		t.Errorf("TrapOID = %q", ev.TrapOID)
	}
	if ev.AgentIP != "192.168.1.50" {
		t.Errorf("AgentIP = %q, want remote addr", ev.AgentIP)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// v2c / v3
// ─────────────────────────────────────────────────────────────────────────────

func TestParse_V2c_LinkUpWithIfName(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		PDUType: gosnmp.SNMPv2Trap,
		Variables: append(v2Header("1.3.6.1.6.3.1.1.5.4"),
			pdu(".1.3.6.1.2.1.2.2.1.1.12", gosnmp.Integer, 12),
			pdu(".1.3.6.1.2.1.2.2.1.7.12", gosnmp.Integer, 1),
			pdu(".1.3.6.1.2.1.2.2.1.8.12", gosnmp.Integer, 1),
			pdu(".1.3.6.1.2.1.2.2.1.2.12", gosnmp.OctetString, []byte("GigabitEthernet0/0/0/12 description")),
			pdu(".1.3.6.1.2.1.31.1.1.1.1.12", gosnmp.OctetString, []byte("Gi0/0/0/12")),
		),
	}

	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Kind != trap.KindUp {
		t.Errorf("Kind = %q, want %q", ev.Kind, trap.KindUp)
	}
	if ev.Version != "2c" {
		t.Errorf("Version = %q", ev.Version)
	}
	if ev.AgentIP != "192.168.1.50" {
		t.Errorf("AgentIP = %q", ev.AgentIP)
	}
	if ev.IfIndex != 12 {
		t.Errorf("IfIndex = %d, want 12", ev.IfIndex)
	}
	if ev.Interface != "Gi0/0/0/12" {
		t.Errorf("Interface = %q, want ifName", ev.Interface)
	}
}

func TestParse_V2c_IfIndexFromColumnSuffix(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		Variables: append(v2Header(".1.3.6.1.6.3.1.1.5.3"),
			pdu(".1.3.6.1.2.1.2.2.1.8.7", gosnmp.Integer, 2),
		),
	}
	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.IfIndex != 7 {
		t.Errorf("IfIndex = %d, want 7", ev.IfIndex)
	}
	if ev.Interface != "" {
		t.Errorf("Interface = %q, want empty", ev.Interface)
	}
}

func TestParse_V2c_MissingTrapOID(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		Variables: []gosnmp.SnmpPDU{
			pdu(".1.3.6.1.2.1.1.3.0", gosnmp.TimeTicks, uint32(1)),
		},
	}
	if _, err := trap.Parse(pkt, testAddr); err == nil {
		t.Fatal("expected error for missing snmpTrapOID.0")
	}
}

func TestParse_V2c_OtherTrap(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Variables: v2Header(".1.3.6.1.6.3.1.1.5.1"), // coldStart
	}
	_, err := trap.Parse(pkt, testAddr)
	if !errors.Is(err, trap.ErrNotLinkEvent) {
		t.Fatalf("err = %v, want ErrNotLinkEvent", err)
	}
}

func TestParse_V3_LinkDown(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version3,
		PDUType:   gosnmp.SNMPv2Trap,
		Variables: v2Header(".1.3.6.1.6.3.1.1.5.3"),
	}
	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Version != "3" || ev.Kind != trap.KindDown {
		t.Errorf("got version %q kind %q", ev.Version, ev.Kind)
	}
}

func TestParse_InformRequest(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		PDUType:   gosnmp.InformRequest,
		Variables: v2Header(".1.3.6.1.6.3.1.1.5.3"),
	}
	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Kind != trap.KindDown {
		t.Errorf("Kind = %q", ev.Kind)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Edge cases
// ─────────────────────────────────────────────────────────────────────────────

func TestParse_NilPacket(t *testing.T) {
	if _, err := trap.Parse(nil, testAddr); err == nil {
		t.Fatal("expected error for nil packet")
	}
}

func TestParse_NilRemoteAddr(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Variables: v2Header(".1.3.6.1.6.3.1.1.5.3"),
	}
	ev, err := trap.Parse(pkt, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.AgentIP != "" {
		t.Errorf("AgentIP = %q, want empty", ev.AgentIP)
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{Version: gosnmp.SnmpVersion(0x7f)}
	if _, err := trap.Parse(pkt, testAddr); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestParse_TimestampIsRecent(t *testing.T) {
	before := time.Now().UTC()
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Variables: v2Header(".1.3.6.1.6.3.1.1.5.3"),
	}
	ev, err := trap.Parse(pkt, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Time.Before(before) || ev.Time.After(time.Now().UTC()) {
		t.Errorf("Time %v not within the call", ev.Time)
	}
}
