package decoder

import (
	"regexp"
	"strings"
)

// InterfaceStatus is one interface block of "show int".
type InterfaceStatus struct {
	PhysicalStatus string
	ProtocolStatus string
	Description    string
	MediaType      string
	MTU            string
	Bandwidth      string // Kbit/sec
	InputRate      string // bits/sec
	OutputRate     string // bits/sec
	InputErrors    string
	OutputErrors   string
	CRC            string
	InterfaceIP    string
}

var (
	// A header starts in column zero: "Gi0/0/0/1 is up, line protocol is up".
	// "line protocol is ..." on its own line never matches because the first
	// token is followed by "protocol", not "is".
	reIfHeader       = regexp.MustCompile(`^(\S+) is (administratively down|up|down)\b`)
	reIfProtocol     = regexp.MustCompile(`line protocol is (administratively down|up|down)\b`)
	reIfDescription  = regexp.MustCompile(`Description: (.*)`)
	reIfMediaType    = regexp.MustCompile(`media type is (.*?),`)
	reIfMTU          = regexp.MustCompile(`MTU (\d+) bytes`)
	reIfBandwidth    = regexp.MustCompile(`BW (\d+) Kbit`)
	reIfInputRate    = regexp.MustCompile(`(?:30 second|5 minute) input rate (\d+) bits/sec`)
	reIfOutputRate   = regexp.MustCompile(`(?:30 second|5 minute) output rate (\d+) bits/sec`)
	reIfInputErrors  = regexp.MustCompile(`(\d+) input errors`)
	reIfOutputErrors = regexp.MustCompile(`(\d+) output errors`)
	reIfCRC          = regexp.MustCompile(`(\d+) CRC`)
	reIfAddress      = regexp.MustCompile(`(?i)internet address is ((?:\d{1,3}\.){3}\d{1,3})`)
)

// DecodeInterfaces parses the transcript of "show int" into a map keyed by
// interface name. Attribute lines seen before the first interface header are
// ignored. When an interface appears twice, the first block wins.
func DecodeInterfaces(text string) map[string]InterfaceStatus {
	out := make(map[string]InterfaceStatus)

	var (
		name string
		cur  *InterfaceStatus
	)
	flush := func() {
		if cur != nil {
			if _, seen := out[name]; !seen {
				out[name] = *cur
			}
		}
	}

	for _, line := range lines(text) {
		if m := reIfHeader.FindStringSubmatch(line); m != nil {
			flush()
			name = m[1]
			cur = &InterfaceStatus{PhysicalStatus: m[2]}
			if v, ok := submatch(reIfProtocol, line); ok {
				cur.ProtocolStatus = v
			}
			continue
		}
		if cur == nil {
			continue
		}
		decodeInterfaceLine(cur, line)
	}
	flush()
	return out
}

func decodeInterfaceLine(cur *InterfaceStatus, line string) {
	if v, ok := submatch(reIfProtocol, line); ok {
		cur.ProtocolStatus = v
	}
	if v, ok := submatch(reIfDescription, line); ok {
		cur.Description = v
	}
	// "Full-duplex, 1000Mb/s, 1000BASE-LX, link type is force-up"
	if strings.Contains(line, "Full-duplex") {
		if parts := strings.Split(line, ", "); len(parts) > 3 {
			cur.MediaType = strings.TrimSpace(parts[2])
		}
	}
	if v, ok := submatch(reIfMediaType, line); ok {
		cur.MediaType = v
	}
	if v, ok := submatch(reIfMTU, line); ok {
		cur.MTU = v
	}
	if v, ok := submatch(reIfBandwidth, line); ok {
		cur.Bandwidth = v
	}
	if v, ok := submatch(reIfInputRate, line); ok {
		cur.InputRate = v
	}
	if v, ok := submatch(reIfOutputRate, line); ok {
		cur.OutputRate = v
	}
	if v, ok := submatch(reIfInputErrors, line); ok {
		cur.InputErrors = v
	}
	if v, ok := submatch(reIfOutputErrors, line); ok {
		cur.OutputErrors = v
	}
	if v, ok := submatch(reIfCRC, line); ok {
		cur.CRC = v
	}
	if v, ok := submatch(reIfAddress, line); ok {
		cur.InterfaceIP = v
	}
}
