package telemetry

import (
	"strconv"
	"strings"
)

// Event is a decoded datagram, either a Sample or Disconnected.
type Event interface {
	eventType() string
}

// Sample is one telemetry report from the simulator hook.
type Sample struct {
	PilotName          string
	VehicleID          string
	IndicatedAirspeed  float64
	AltitudeBarometric float64
	SimTime            uint64
}

// Disconnected is sent by the hook when the simulation stops.
type Disconnected struct{}

func (Sample) eventType() string       { return "sample" }
func (Disconnected) eventType() string { return "disconnected" }

// Format renders s in the wire format the simulator hook sends. Floats are
// written with the fewest digits that parse back to the same value.
func Format(s Sample) string {
	var b strings.Builder
	b.WriteString(cmdTelem)
	b.WriteByte(' ')
	b.WriteString(strings.Join([]string{
		s.PilotName,
		s.VehicleID,
		strconv.FormatFloat(s.IndicatedAirspeed, 'f', -1, 64),
		strconv.FormatFloat(s.AltitudeBarometric, 'f', -1, 64),
		strconv.FormatUint(s.SimTime, 10),
	}, ","))
	return b.String()
}
