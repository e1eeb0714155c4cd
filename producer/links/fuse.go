// Package links fuses the five per-device decoder outputs into one canonical
// LinkAttributes record per interface.
//
// Pipeline position:
//
//	cli/decoder → producer/links [fusion] → resolver → store
//
// Merge order and policy:
//
//  1. Neighbor discovery seeds a link with the neighbor device name, creating
//     it if the interface is unseen.
//  2. Interface status updates existing links; it creates a link only when
//     the interface carries a description.
//  3. Optics ports are correlated to a port-path interface name by comparing ordered
//     number sequences ("Optics0_0_0_1" ↔ "HundredGigE0/0/0/1"); TX/RX power
//     is written to the matched link, creating it when needed. Ports are
//     processed in device numbering order.
//  4. OSPF adjacencies set state and neighbor interface address on existing
//     links only.
//  5. LDP peers mark every existing discovery-source interface as "up".
//
// Fusion is a pure function of its inputs; every pass walks keys in sorted
// order, so fusing the same inputs twice yields identical results.
package links

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/vpbank/linkcrawler/cli/decoder"
	"github.com/vpbank/linkcrawler/models"
)

// LDPUp is the marker written to MPLSLDP for discovery-source interfaces.
const LDPUp = "up"

// ─────────────────────────────────────────────────────────────────────────────
// Inputs / Report
// ─────────────────────────────────────────────────────────────────────────────

// Inputs carries the decoded output of the five device commands.
type Inputs struct {
	Neighbors  map[string]decoder.Neighbor
	Interfaces map[string]decoder.InterfaceStatus
	Optics     map[string]decoder.OpticsPort
	OSPF       map[string]decoder.OSPFNeighbor
	LDP        map[string]decoder.LDPNeighbor
}

// Decode runs every decoder over the transcripts keyed by command string.
// Missing commands decode to empty maps.
func Decode(transcripts map[string]string) Inputs {
	return Inputs{
		Neighbors:  decoder.DecodeNeighbors(transcripts[decoder.CommandNeighbors]),
		Interfaces: decoder.DecodeInterfaces(transcripts[decoder.CommandInterfaces]),
		Optics:     decoder.DecodeOptics(transcripts[decoder.CommandOptics]),
		OSPF:       decoder.DecodeOSPF(transcripts[decoder.CommandOSPF]),
		LDP:        decoder.DecodeLDP(transcripts[decoder.CommandLDP]),
	}
}

// Ambiguity is an optics port whose number sequence matched more than one
// interface name. Such ports are skipped rather than guessed.
type Ambiguity struct {
	Port       string
	Candidates []string
}

// Report describes optics ports that could not be placed on a link.
type Report struct {
	Ambiguous []Ambiguity
	Unmatched []string
}

// ─────────────────────────────────────────────────────────────────────────────
// Fuse
// ─────────────────────────────────────────────────────────────────────────────

// Fuse merges in into a map keyed by interface name.
func Fuse(in Inputs) (map[string]models.LinkAttributes, Report) {
	out := make(map[string]models.LinkAttributes)
	var rep Report

	// 1. Neighbor discovery.
	for _, name := range sortedKeys(in.Neighbors) {
		l := out[name]
		l.Name = name
		l.CDP = in.Neighbors[name].DeviceID
		out[name] = l
	}

	// 2. Interface status.
	for _, name := range sortedKeys(in.Interfaces) {
		st := in.Interfaces[name]
		l, ok := out[name]
		if !ok && st.Description == "" {
			continue
		}
		l.Name = name
		l.PhysicalStatus = st.PhysicalStatus
		l.ProtocolStatus = st.ProtocolStatus
		l.Description = st.Description
		l.MediaType = st.MediaType
		l.MTU = st.MTU
		l.Bandwidth = st.Bandwidth
		l.InputRate = st.InputRate
		l.OutputRate = st.OutputRate
		l.InputErrors = st.InputErrors
		l.OutputErrors = st.OutputErrors
		l.CRC = st.CRC
		l.InterfaceIP = st.InterfaceIP
		out[name] = l
	}

	// 3. Optics.
	index := indexByNumbers(sortedKeys(in.Interfaces))
	for _, port := range sortedPorts(in.Optics) {
		cands := index[numberKey(port)]
		switch len(cands) {
		case 0:
			rep.Unmatched = append(rep.Unmatched, port)
			continue
		case 1:
		default:
			rep.Ambiguous = append(rep.Ambiguous, Ambiguity{Port: port, Candidates: cands})
			continue
		}
		name := cands[0]
		l := out[name]
		l.Name = name
		l.TX = in.Optics[port].TXPower
		l.RX = in.Optics[port].RXPower
		out[name] = l
	}

	// 4. OSPF.
	for _, name := range sortedKeys(in.OSPF) {
		l, ok := out[name]
		if !ok {
			continue
		}
		l.OSPF = in.OSPF[name].State
		l.OSPFInterfaceAddress = in.OSPF[name].InterfaceAddress
		out[name] = l
	}

	// 5. LDP.
	for _, peer := range sortedKeys(in.LDP) {
		for _, name := range in.LDP[peer].DiscoverySources {
			l, ok := out[name]
			if !ok {
				continue
			}
			l.MPLSLDP = LDPUp
			out[name] = l
		}
	}

	return out, rep
}

// ─────────────────────────────────────────────────────────────────────────────
// Optics correlation helpers
// ─────────────────────────────────────────────────────────────────────────────

// numbers extracts the ordered runs of decimal digits in s:
// "HundredGigE0/0/0/12" → [0 0 0 12].
func numbers(s string) []int {
	var (
		out []int
		cur = -1
	)
	for _, r := range s {
		if unicode.IsDigit(r) {
			if cur < 0 {
				cur = 0
			}
			cur = cur*10 + int(r-'0')
			continue
		}
		if cur >= 0 {
			out = append(out, cur)
			cur = -1
		}
	}
	if cur >= 0 {
		out = append(out, cur)
	}
	return out
}

// numberKey renders the number sequence of s as a comparable key.
func numberKey(s string) string {
	nums := numbers(s)
	if len(nums) == 0 {
		return ""
	}
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// portPath matches a type prefix followed by a slash-separated slot path
// ("HundredGigE0/0/0/12"). Names with letters between their numbers
// ("MgmtEth0/RP0/CPU0/0") or a subinterface suffix never carry optics.
var portPath = regexp.MustCompile(`^[A-Za-z][A-Za-z-]*\d+(/\d+)*$`)

// indexByNumbers maps number keys to the port-path interface names that
// carry them.
func indexByNumbers(names []string) map[string][]string {
	idx := make(map[string][]string, len(names))
	for _, n := range names {
		if !portPath.MatchString(n) {
			continue
		}
		if k := numberKey(n); k != "" {
			idx[k] = append(idx[k], n)
		}
	}
	return idx
}

// sortedPorts orders optics ports by their number sequence, then by label.
func sortedPorts(m map[string]decoder.OpticsPort) []string {
	ports := sortedKeys(m)
	sort.SliceStable(ports, func(i, j int) bool {
		a, b := numbers(ports[i]), numbers(ports[j])
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return ports
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
