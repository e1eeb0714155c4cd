package decoder

import "regexp"

// OSPFNeighbor is one neighbor block of "show ip ospf nei det", keyed by the
// local interface the adjacency runs over.
type OSPFNeighbor struct {
	NeighborID       string
	InterfaceAddress string // the neighbor's address on the shared segment
	Area             string
	Interface        string // local interface
	Priority         string
	State            string
	StateChanges     string
	DR               string
	BDR              string
	Options          string
	DeadTimer        string
	Uptime           string
	BFDStatus        string
}

var (
	reOSPFNeighbor = regexp.MustCompile(`Neighbor\s+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}),\s+interface\s+address\s+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
	reOSPFArea     = regexp.MustCompile(`In the area (.*?) via interface (.*)`)
	reOSPFState    = regexp.MustCompile(`Neighbor priority is (\d+), State is (\w+)(?:/\S+)?, (\d+) state changes`)
	reOSPFDR       = regexp.MustCompile(`DR is (\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}) BDR is (\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
	reOSPFOptions  = regexp.MustCompile(`^\s*Options is (0x[0-9a-fA-F]+)`)
	reOSPFDead     = regexp.MustCompile(`Dead timer due in (\d{2}:\d{2}:\d{2})`)
	reOSPFUptime   = regexp.MustCompile(`Neighbor is up for (.+)`)
	reOSPFBFD      = regexp.MustCompile(`Neighbor BFD status: (.+)`)
)

type ospfState int

const (
	ospfIdle ospfState = iota
	ospfInNeighbor
)

// DecodeOSPF parses the transcript of "show ip ospf nei det" into a map keyed
// by local interface name.
//
// The decoder is a two-state machine: idle until a "Neighbor X, interface
// address Y" line opens a block, then in-neighbor until the next block opens
// or input ends. Blocks that never name a local interface are dropped. When
// two neighbors share an interface the later block wins.
func DecodeOSPF(text string) map[string]OSPFNeighbor {
	out := make(map[string]OSPFNeighbor)

	state := ospfIdle
	var cur OSPFNeighbor
	flush := func() {
		if state == ospfInNeighbor && cur.Interface != "" {
			out[cur.Interface] = cur
		}
	}

	for _, line := range lines(text) {
		if m := reOSPFNeighbor.FindStringSubmatch(line); m != nil {
			flush()
			cur = OSPFNeighbor{NeighborID: m[1], InterfaceAddress: m[2]}
			state = ospfInNeighbor
			continue
		}
		if state == ospfIdle {
			continue
		}

		if m := reOSPFArea.FindStringSubmatch(line); m != nil {
			cur.Area = m[1]
			cur.Interface = beforeComma(m[2])
		}
		if m := reOSPFState.FindStringSubmatch(line); m != nil {
			cur.Priority, cur.State, cur.StateChanges = m[1], m[2], m[3]
		}
		if m := reOSPFDR.FindStringSubmatch(line); m != nil {
			cur.DR, cur.BDR = m[1], m[2]
		}
		if v, ok := submatch(reOSPFOptions, line); ok {
			cur.Options = v
		}
		if v, ok := submatch(reOSPFDead, line); ok {
			cur.DeadTimer = v
		}
		if v, ok := submatch(reOSPFUptime, line); ok {
			cur.Uptime = v
		}
		if v, ok := submatch(reOSPFBFD, line); ok {
			cur.BFDStatus = v
		}
	}
	flush()
	return out
}
