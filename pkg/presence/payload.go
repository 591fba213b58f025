package presence

import (
	"fmt"
	"strings"
	"time"

	"github.com/slim-bean/dcs-presence/pkg/telemetry"
)

const (
	idleHeadline = "Mission planning"

	// defaultPilotName is what the simulator reports when the player never
	// set a callsign.
	defaultPilotName = "New callsign"

	speedThreshold = 10.0
	speedFactor    = 1.994
	feetPerMeter   = 3.281
)

// Payload is the status published to the presence service.
type Payload struct {
	Headline     string
	Detail       string
	AssetKey     string
	AssetLabel   string
	SessionStart time.Time
}

// Labeler turns a raw vehicle id into a display label.
type Labeler interface {
	Lookup(id string) string
}

func idlePayload(sessionStart time.Time) Payload {
	return Payload{
		Headline:     idleHeadline,
		SessionStart: sessionStart,
	}
}

func samplePayload(s telemetry.Sample, callsign string, labels Labeler, sessionStart time.Time) Payload {
	vehicle := labels.Lookup(s.VehicleID)

	name := callsign
	if name == "" {
		name = s.PilotName
	}

	headline := fmt.Sprintf("%s in %s", name, vehicle)
	if name == "" || name == defaultPilotName {
		headline = fmt.Sprintf("flying %s", vehicle)
	}

	return Payload{
		Headline:     headline,
		Detail:       fmt.Sprintf("%.0f knots at %.0fk feet", reportedSpeed(s.IndicatedAirspeed), altitudeThousands(s.AltitudeBarometric)),
		AssetKey:     strings.ToLower(s.VehicleID),
		AssetLabel:   vehicle,
		SessionStart: sessionStart,
	}
}

// reportedSpeed suppresses the airspeed noise of an aircraft parked on the ground.
func reportedSpeed(ias float64) float64 {
	if ias > speedThreshold {
		return ias * speedFactor
	}
	return 0
}

func altitudeThousands(alt float64) float64 {
	return (alt * feetPerMeter) / 1000
}
