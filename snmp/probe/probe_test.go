package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAgent answers v2c Get requests for sysName.0 and sysUpTime.0.
func startAgent(t *testing.T, community string) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 65535)
		codec := &gosnmp.GoSNMP{Version: gosnmp.Version2c, Community: community}
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req, err := codec.SnmpDecodePacket(buf[:n])
			if err != nil || req.Community != community {
				continue
			}
			resp := &gosnmp.SnmpPacket{
				Version:   gosnmp.Version2c,
				Community: community,
				PDUType:   gosnmp.GetResponse,
				RequestID: req.RequestID,
				Variables: []gosnmp.SnmpPDU{
					{Name: OIDSysName, Type: gosnmp.OctetString, Value: []byte("core-a")},
					{Name: OIDSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(12345)},
				},
			}
			out, err := resp.MarshalMsg()
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(out, addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestProbeReachable(t *testing.T) {
	port := startAgent(t, "crawler")
	p := New(Config{Community: "crawler", Port: port, Timeout: time.Second})

	res, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "core-a", res.SysName)
	assert.Equal(t, 123450*time.Millisecond, res.Uptime)
}

func TestProbeUnreachable(t *testing.T) {
	port := startAgent(t, "crawler")
	p := New(Config{Community: "wrong", Port: port, Timeout: 100 * time.Millisecond, Retries: -1})

	_, err := p.Probe(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestNewSessionVersions(t *testing.T) {
	g, err := NewSession(Config{Version: "1", Community: "c"}, "127.0.0.1")
	require.NoError(t, err)
	defer g.Conn.Close()
	assert.Equal(t, gosnmp.Version1, g.Version)
	assert.Equal(t, "c", g.Community)
	assert.EqualValues(t, 161, g.Port)

	g3, err := NewSession(Config{Version: "3", V3: V3Credentials{
		Username:                 "crawler",
		AuthenticationProtocol:   "sha256",
		AuthenticationPassphrase: "authpass1",
		PrivacyProtocol:          "aes",
		PrivacyPassphrase:        "privpass1",
	}}, "127.0.0.1")
	require.NoError(t, err)
	defer g3.Conn.Close()
	assert.Equal(t, gosnmp.AuthPriv, g3.MsgFlags)
	usm, ok := g3.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	require.True(t, ok)
	assert.Equal(t, gosnmp.SHA256, usm.AuthenticationProtocol)
	assert.Equal(t, gosnmp.AES, usm.PrivacyProtocol)

	_, err = NewSession(Config{Version: "4"}, "127.0.0.1")
	assert.Error(t, err)
}

func TestSNMPv3MsgFlags(t *testing.T) {
	tests := []struct {
		name string
		cred V3Credentials
		want gosnmp.SnmpV3MsgFlags
	}{
		{"none", V3Credentials{}, gosnmp.NoAuthNoPriv},
		{"noauth", V3Credentials{AuthenticationProtocol: "NoAuth"}, gosnmp.NoAuthNoPriv},
		{"auth", V3Credentials{AuthenticationProtocol: "sha"}, gosnmp.AuthNoPriv},
		{"auth nopriv", V3Credentials{AuthenticationProtocol: "md5", PrivacyProtocol: "nopriv"}, gosnmp.AuthNoPriv},
		{"authpriv", V3Credentials{AuthenticationProtocol: "sha", PrivacyProtocol: "aes256"}, gosnmp.AuthPriv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snmpv3MsgFlags(tt.cred))
		})
	}
}

func TestProtocolMapping(t *testing.T) {
	assert.Equal(t, gosnmp.SHA512, mapAuthProto("SHA512"))
	assert.Equal(t, gosnmp.NoAuth, mapAuthProto("bogus"))
	assert.Equal(t, gosnmp.AES192C, mapPrivProto("aes192c"))
	assert.Equal(t, gosnmp.NoPriv, mapPrivProto(""))
}
