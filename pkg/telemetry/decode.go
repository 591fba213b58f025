package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	cmdBye   = "bye"
	cmdTelem = "telem"

	sampleFields = 5
)

// Reasons a datagram is discarded, also used as metric label values.
const (
	ReasonNonUTF8        = "non_utf8"
	ReasonMalformed      = "malformed"
	ReasonUnknownCommand = "unknown_command"
	ReasonFieldCount     = "field_count"
	ReasonBadNumber      = "bad_number"
	ReasonOversize       = "oversize"
	ReasonReadError      = "read_error"
)

// DecodeError describes a datagram that could not be turned into an Event.
type DecodeError struct {
	Reason string
	Line   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q: %v", e.Reason, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a single datagram. It never panics; anything that is not a
// well formed bye or telem line is returned as a *DecodeError.
func Decode(b []byte) (Event, error) {
	if !utf8.Valid(b) {
		return nil, &DecodeError{Reason: ReasonNonUTF8, Line: strconv.QuoteToASCII(string(b))}
	}
	line := strings.TrimSuffix(strings.TrimSuffix(string(b), "\n"), "\r")

	if line == cmdBye {
		return Disconnected{}, nil
	}

	cmd, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, &DecodeError{Reason: ReasonMalformed, Line: line}
	}
	if cmd != cmdTelem {
		return nil, &DecodeError{Reason: ReasonUnknownCommand, Line: line}
	}

	parts := strings.Split(rest, ",")
	if len(parts) < sampleFields {
		return nil, &DecodeError{Reason: ReasonFieldCount, Line: line}
	}

	ias, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonBadNumber, Line: line, Err: err}
	}
	alt, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonBadNumber, Line: line, Err: err}
	}
	t, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonBadNumber, Line: line, Err: err}
	}

	return Sample{
		PilotName:          parts[0],
		VehicleID:          parts[1],
		IndicatedAirspeed:  ias,
		AltitudeBarometric: alt,
		SimTime:            t,
	}, nil
}
