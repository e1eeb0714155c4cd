package decoder

import (
	"regexp"
	"strings"
)

// Neighbor is one entry of "sh cdp n d", keyed by the local interface the
// neighbor was discovered on.
type Neighbor struct {
	DeviceID     string
	IPAddress    string
	Platform     string
	Capabilities string
	Interface    string // local interface
	PortID       string // neighbor's outgoing port
}

var (
	reCDPSeparator = regexp.MustCompile(`^\s*-{20,}\s*$`)
	reCDPDeviceID  = regexp.MustCompile(`Device ID: (.*)`)
	reCDPAddress   = regexp.MustCompile(`IP(?:v4)? address: (\S+)`)
	reCDPPlatform  = regexp.MustCompile(`Platform: ([^,]*)(?:,\s*Capabilities: (.*))?`)
	reCDPInterface = regexp.MustCompile(`^\s*Interface: (.*)`)
	reCDPPortID    = regexp.MustCompile(`Port ID \(outgoing port\): (.*)`)
)

// DecodeNeighbors parses the transcript of "sh cdp n d" into a map keyed by
// local interface name. Entries without a device ID or local interface are
// dropped. When two entries share a local interface the later one wins.
func DecodeNeighbors(text string) map[string]Neighbor {
	out := make(map[string]Neighbor)

	var cur *Neighbor
	flush := func() {
		if cur != nil && cur.DeviceID != "" && cur.Interface != "" {
			out[cur.Interface] = *cur
		}
		cur = nil
	}

	for _, line := range lines(text) {
		if reCDPSeparator.MatchString(line) {
			flush()
			continue
		}
		if v, ok := submatch(reCDPDeviceID, line); ok {
			flush()
			cur = &Neighbor{DeviceID: v}
			continue
		}
		if cur == nil {
			continue
		}
		if v, ok := submatch(reCDPAddress, line); ok && cur.IPAddress == "" {
			cur.IPAddress = v
		}
		if m := reCDPPlatform.FindStringSubmatch(line); m != nil {
			cur.Platform = strings.TrimSpace(m[1])
			cur.Capabilities = strings.TrimSpace(m[2])
		}
		if v, ok := submatch(reCDPInterface, line); ok {
			cur.Interface = beforeComma(v)
		}
		if v, ok := submatch(reCDPPortID, line); ok {
			cur.PortID = v
		}
	}
	flush()
	return out
}
