// Package decoder turns raw CLI transcripts captured from a core device into
// structured records keyed by interface or neighbor identity.
//
// Pipeline position:
//
//	session [SSH exec] → cli/decoder → producer/links [fusion]
//
// One decoder exists per command. Every decoder is a pure function of the
// transcript text: it never returns an error and never panics, and an empty
// or unrecognised transcript yields an empty (non-nil) map. Lines that do not
// match a known pattern are ignored, so dialect drift degrades to missing
// fields rather than failures.
package decoder

import (
	"regexp"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// The five commands issued to every device, verbatim.
const (
	CommandInterfaces = "show int"
	CommandOptics     = "show controllers optics *"
	CommandNeighbors  = "sh cdp n d"
	CommandOSPF       = "show ip ospf nei det"
	CommandLDP        = "show mpls ldp neighbor"
)

// Commands lists the device commands in the order a crawl issues them.
var Commands = []string{
	CommandInterfaces,
	CommandOptics,
	CommandNeighbors,
	CommandOSPF,
	CommandLDP,
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared helpers
// ─────────────────────────────────────────────────────────────────────────────

// lines splits a transcript into lines, tolerating CRLF line endings that
// come back from interactive sessions.
func lines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// submatch returns capture group 1 of re in line, or "" with ok=false.
func submatch(re *regexp.Regexp, line string) (string, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// beforeComma returns s up to the first comma, trimmed.
func beforeComma(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
