package decoder

import (
	"regexp"
	"strings"
)

// LDPNeighbor is one peer block of "show mpls ldp neighbor", keyed by the
// peer LDP identifier.
type LDPNeighbor struct {
	Identifier       string
	TCPConnection    string
	GracefulRestart  string
	SessionHoldtime  string
	State            string
	MessagesSent     string
	MessagesReceived string
	UpTime           string

	// DiscoverySources lists the local interfaces the peer was discovered on.
	DiscoverySources []string

	// Addresses lists the IPv4 addresses bound to the peer.
	Addresses []string
}

var (
	reLDPPeer      = regexp.MustCompile(`Peer LDP Identifier:\s*(\S+)`)
	reLDPTCP       = regexp.MustCompile(`TCP connection:\s*(.*)`)
	reLDPGraceful  = regexp.MustCompile(`Graceful Restart:\s*(.*)`)
	reLDPHoldtime  = regexp.MustCompile(`Session Holdtime:\s*(.*)`)
	reLDPState     = regexp.MustCompile(`^\s*State:\s*([^;]+)(?:;\s*Msgs sent/rcvd:\s*(\d+)/(\d+))?`)
	reLDPUpTime    = regexp.MustCompile(`Up time:\s*(.*)`)
	reLDPSources   = regexp.MustCompile(`LDP Discovery Sources:`)
	reLDPAddresses = regexp.MustCompile(`Addresses bound to this peer:`)
	reLDPIPv4      = regexp.MustCompile(`^\s*IPv4:\s*(.*)$`)
	reLDPIPv6      = regexp.MustCompile(`^\s*IPv6:`)
	reLDPCount     = regexp.MustCompile(`^\(\d+\)$`)
	// Any "Label: value" line closes an open list.
	reLDPField = regexp.MustCompile(`^\s*[A-Za-z][A-Za-z0-9 /()-]*:(\s|$)`)
)

type ldpState int

const (
	ldpIdle ldpState = iota
	ldpInNeighbor
	ldpReadingSources
	ldpReadingAddresses
)

// DecodeLDP parses the transcript of "show mpls ldp neighbor" into a map keyed
// by peer LDP identifier.
//
// States:
//
//	idle              → in neighbor         on "Peer LDP Identifier:"
//	in neighbor       → reading sources     on "LDP Discovery Sources:"
//	in neighbor       → reading addresses   on "Addresses bound to this peer:"
//	reading sources   → in neighbor         on "IPv6:" or any "Label: value" line
//	reading addresses → in neighbor         on "IPv6:" or any "Label: value" line
//	any               → in neighbor (new)   on "Peer LDP Identifier:"
//
// While reading a list, the "IPv4: (N)" line contributes the tokens after the
// count and every following line contributes all of its tokens, however many
// lines the list spans.
func DecodeLDP(text string) map[string]LDPNeighbor {
	out := make(map[string]LDPNeighbor)

	state := ldpIdle
	var cur LDPNeighbor
	flush := func() {
		if state != ldpIdle && cur.Identifier != "" {
			out[cur.Identifier] = cur
		}
	}

	for _, line := range lines(text) {
		if v, ok := submatch(reLDPPeer, line); ok {
			flush()
			cur = LDPNeighbor{Identifier: v}
			state = ldpInNeighbor
			continue
		}

		switch state {
		case ldpIdle:
			continue

		case ldpReadingSources, ldpReadingAddresses:
			if reLDPIPv6.MatchString(line) {
				state = ldpInNeighbor
				continue
			}
			if m := reLDPIPv4.FindStringSubmatch(line); m != nil {
				cur.appendList(state, listTokens(m[1]))
				continue
			}
			if !reLDPField.MatchString(line) {
				cur.appendList(state, listTokens(line))
				continue
			}
			// A labelled line ends the list; handle it as a block field.
			state = ldpInNeighbor
		}

		state = cur.decodeField(line, state)
	}
	flush()
	return out
}

// decodeField applies one in-neighbor line and returns the next state.
func (n *LDPNeighbor) decodeField(line string, state ldpState) ldpState {
	switch {
	case reLDPSources.MatchString(line):
		return ldpReadingSources
	case reLDPAddresses.MatchString(line):
		return ldpReadingAddresses
	}
	if v, ok := submatch(reLDPTCP, line); ok {
		n.TCPConnection = v
	}
	if v, ok := submatch(reLDPGraceful, line); ok {
		n.GracefulRestart = v
	}
	if v, ok := submatch(reLDPHoldtime, line); ok {
		n.SessionHoldtime = v
	}
	if m := reLDPState.FindStringSubmatch(line); m != nil {
		n.State = strings.TrimSpace(m[1])
		n.MessagesSent, n.MessagesReceived = m[2], m[3]
	}
	if v, ok := submatch(reLDPUpTime, line); ok {
		n.UpTime = v
	}
	return state
}

func (n *LDPNeighbor) appendList(state ldpState, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if state == ldpReadingSources {
		n.DiscoverySources = append(n.DiscoverySources, tokens...)
		return
	}
	n.Addresses = append(n.Addresses, tokens...)
}

// listTokens splits a list line into entries, dropping the "(N)" count that
// prefixes the first line and targeted-hello descriptions that are not
// interface names.
func listTokens(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "Targeted Hello") {
		return nil
	}
	fields := strings.Fields(s)
	if len(fields) > 0 && reLDPCount.MatchString(fields[0]) {
		fields = fields[1:]
	}
	return fields
}
