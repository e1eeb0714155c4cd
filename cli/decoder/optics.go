package decoder

import (
	"regexp"
	"strings"
)

// OpticsPort is one port block of "show controllers optics *".
type OpticsPort struct {
	ControllerState     string
	TransportAdminState string
	LaserState          string
	LEDState            string
	OpticsType          string
	Wavelength          string // nm
	DetectedAlarms      string
	LaserBiasCurrent    string // mA
	TXPower             string // dBm, "Actual TX Power"
	RXPower             string // dBm
	Temperature         string // Celsius
	Voltage             string // V

	// Thresholds maps a parameter row (e.g. "Rx Power Threshold(dBm)") to its
	// alarm and warning limits.
	Thresholds map[string]Threshold

	// Vendor holds the transceiver vendor detail rows keyed by label
	// ("Form Factor", "Name", "Part Number", ...).
	Vendor map[string]string
}

// Threshold is one row of the optics alarm/warning threshold table.
type Threshold struct {
	HighAlarm   string
	LowAlarm    string
	HighWarning string
	LowWarning  string
}

const (
	maxThresholdRows = 5
	maxVendorRows    = 10
)

var (
	reOpPort        = regexp.MustCompile(`Port:.*?(Optics\d+_\d+_\d+_\d+)`)
	reOpController  = regexp.MustCompile(`Controller State: (Up|Down)`)
	reOpAdmin       = regexp.MustCompile(`Transport Admin State: (In Service|Out of Service|Maintenance|Automatic In Service)`)
	reOpLaser       = regexp.MustCompile(`Laser State: (On|Off|N/A)`)
	reOpLED         = regexp.MustCompile(`LED State: (Green|Red|Yellow|Off|Not Applicable)`)
	reOpType        = regexp.MustCompile(`Optics Type: (.*)`)
	reOpWavelength  = regexp.MustCompile(`Wavelength = (\d+\.\d+) nm`)
	reOpAlarms      = regexp.MustCompile(`Detected Alarms: (.*)$`)
	reOpBias        = regexp.MustCompile(`Laser Bias Current = (\d+\.\d+) mA`)
	reOpTX          = regexp.MustCompile(`Actual TX Power = (-?\d+\.\d+) dBm`)
	reOpRX          = regexp.MustCompile(`RX Power = (-?\d+\.\d+) dBm`)
	reOpTemperature = regexp.MustCompile(`Temperature = (-?\d+\.\d+) Celsius`)
	reOpVoltage     = regexp.MustCompile(`Voltage = (\d+\.\d+) V`)

	reOpThresholdHeader = regexp.MustCompile(`Parameter.*High Alarm.*Low Alarm.*High Warning.*Low Warning`)
	reOpThresholdRow    = regexp.MustCompile(`^\s*(\S.*?)\s+(-?\d+\.\d+)\s+(-?\d+\.\d+)\s+(-?\d+\.\d+)\s+(-?\d+\.\d+)\s*$`)
	reOpFormFactor      = regexp.MustCompile(`Form Factor\s*: (.*)`)
	reOpVendorRow       = regexp.MustCompile(`^\s*(\S.*?)\s*: (.*)$`)
)

type opticsState int

const (
	opticsIdle opticsState = iota
	opticsInPort
	opticsReadingThresholds
	opticsReadingVendor
)

// DecodeOptics parses the transcript of "show controllers optics *" into a
// map keyed by port label ("Optics0_0_0_1").
//
// The threshold table is read for at most five rows after its header and the
// vendor block for at most ten rows after its "Form Factor" line; a new port
// header always ends either table.
func DecodeOptics(text string) map[string]OpticsPort {
	ports := make(map[string]*OpticsPort)

	var (
		state     = opticsIdle
		cur       *OpticsPort
		remaining int
	)

	for _, line := range lines(text) {
		if m := reOpPort.FindStringSubmatch(line); m != nil {
			if _, seen := ports[m[1]]; seen {
				// Duplicate block: ignore it until the next header.
				state, cur = opticsIdle, nil
				continue
			}
			cur = &OpticsPort{}
			ports[m[1]] = cur
			state = opticsInPort
			continue
		}

		switch state {
		case opticsIdle:
			continue

		case opticsReadingThresholds:
			remaining--
			if m := reOpThresholdRow.FindStringSubmatch(line); m != nil {
				cur.Thresholds[strings.TrimSpace(m[1])] = Threshold{
					HighAlarm:   m[2],
					LowAlarm:    m[3],
					HighWarning: m[4],
					LowWarning:  m[5],
				}
			}
			if remaining <= 0 {
				state = opticsInPort
			}
			continue

		case opticsReadingVendor:
			remaining--
			if m := reOpVendorRow.FindStringSubmatch(line); m != nil {
				cur.Vendor[m[1]] = strings.TrimSpace(m[2])
			}
			if remaining <= 0 {
				state = opticsInPort
			}
			continue
		}

		// opticsInPort
		if reOpThresholdHeader.MatchString(line) {
			if cur.Thresholds == nil {
				cur.Thresholds = make(map[string]Threshold)
			}
			state, remaining = opticsReadingThresholds, maxThresholdRows
			continue
		}
		if v, ok := submatch(reOpFormFactor, line); ok {
			if cur.Vendor == nil {
				cur.Vendor = make(map[string]string)
			}
			cur.Vendor["Form Factor"] = v
			state, remaining = opticsReadingVendor, maxVendorRows
			continue
		}
		decodeOpticsLine(cur, line)
	}

	out := make(map[string]OpticsPort, len(ports))
	for k, p := range ports {
		out[k] = *p
	}
	return out
}

func decodeOpticsLine(cur *OpticsPort, line string) {
	set := func(re *regexp.Regexp, dst *string) {
		if v, ok := submatch(re, line); ok {
			*dst = v
		}
	}
	set(reOpController, &cur.ControllerState)
	set(reOpAdmin, &cur.TransportAdminState)
	set(reOpLaser, &cur.LaserState)
	set(reOpLED, &cur.LEDState)
	set(reOpType, &cur.OpticsType)
	set(reOpWavelength, &cur.Wavelength)
	set(reOpAlarms, &cur.DetectedAlarms)
	set(reOpBias, &cur.LaserBiasCurrent)
	set(reOpTX, &cur.TXPower)
	set(reOpRX, &cur.RXPower)
	set(reOpTemperature, &cur.Temperature)
	set(reOpVoltage, &cur.Voltage)
}
