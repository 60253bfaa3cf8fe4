package flightlink

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/monitoring"
)

// Inbound line types.
const (
	TypeTelemetry = "telemetry" // full snapshot
	TypePosition  = "position"  // NED position only
	TypeAltitude  = "altitude"  // relative altitude only
	TypeHeading   = "heading"   // yaw only
	TypeAck       = "ack"
)

type inboundLine struct {
	Type             string              `json:"type"`
	Position         *flight.PositionNED `json:"position,omitempty"`
	RelativeAltitude *float32            `json:"relative_altitude_m,omitempty"`
	Yaw              *float32            `json:"yaw_deg,omitempty"`

	Cmd   string `json:"cmd,omitempty"`
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// ApplyLine merges one inbound line into snap. It reports whether the
// snapshot changed. Acknowledgements never change it; failed ones are logged.
func ApplyLine(snap *flight.Telemetry, line string) (bool, error) {
	var in inboundLine
	if err := json.Unmarshal([]byte(line), &in); err != nil {
		return false, fmt.Errorf("failed to decode line: %w", err)
	}

	switch in.Type {
	case TypeTelemetry, TypePosition, TypeAltitude, TypeHeading:
	case TypeAck:
		if !in.OK {
			monitoring.Logf("flightlink: %s rejected by flight controller: %s", in.Cmd, in.Error)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown line type %q", in.Type)
	}

	changed := false
	if in.Position != nil && (in.Type == TypeTelemetry || in.Type == TypePosition) {
		snap.Position = *in.Position
		snap.Received |= flight.FieldPosition
		changed = true
	}
	if in.RelativeAltitude != nil && (in.Type == TypeTelemetry || in.Type == TypeAltitude) {
		snap.RelativeAltitude = *in.RelativeAltitude
		snap.Received |= flight.FieldAltitude
		changed = true
	}
	if in.Yaw != nil && (in.Type == TypeTelemetry || in.Type == TypeHeading) {
		snap.Yaw = *in.Yaw
		snap.Received |= flight.FieldYaw
		changed = true
	}
	if !changed {
		return false, fmt.Errorf("%s line carries no fields", in.Type)
	}
	return true, nil
}
