// Package flightlink speaks a JSON-lines protocol to the flight controller
// bridge over a serialmux.Mux. Outbound lines are commands; inbound lines are
// telemetry fragments and command acknowledgements.
package flightlink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/monitoring"
	"github.com/banshee-data/precision.land/internal/serialmux"
)

// Command names on the wire.
const (
	CmdVelocityBody = "velocity_body"
	CmdPositionNED  = "position_ned"
	CmdArm          = "arm"
	CmdTakeoff      = "takeoff"
	CmdLand         = "land"
	CmdDisarm       = "disarm"
)

type commandLine struct {
	Cmd string `json:"cmd"`
	*flight.VelocityBody
	*flight.PositionSetpoint
	Altitude *float64 `json:"altitude_m,omitempty"`
}

// Link is a flight.Commander and flight.TelemetrySource over a serial mux.
type Link struct {
	mux serialmux.Mux
}

// New returns a Link over mux. The caller runs mux.Monitor.
func New(mux serialmux.Mux) *Link {
	return &Link{mux: mux}
}

func (l *Link) send(ctx context.Context, c commandLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", c.Cmd, err)
	}
	if err := l.mux.SendLine(string(b)); err != nil {
		return fmt.Errorf("failed to send %s command: %w", c.Cmd, err)
	}
	return nil
}

func (l *Link) SetVelocityBody(ctx context.Context, v flight.VelocityBody) error {
	return l.send(ctx, commandLine{Cmd: CmdVelocityBody, VelocityBody: &v})
}

func (l *Link) SetPositionNED(ctx context.Context, p flight.PositionSetpoint) error {
	return l.send(ctx, commandLine{Cmd: CmdPositionNED, PositionSetpoint: &p})
}

func (l *Link) Arm(ctx context.Context) error {
	return l.send(ctx, commandLine{Cmd: CmdArm})
}

func (l *Link) Takeoff(ctx context.Context, altitude float64) error {
	return l.send(ctx, commandLine{Cmd: CmdTakeoff, Altitude: &altitude})
}

func (l *Link) Land(ctx context.Context) error {
	return l.send(ctx, commandLine{Cmd: CmdLand})
}

func (l *Link) Disarm(ctx context.Context) error {
	return l.send(ctx, commandLine{Cmd: CmdDisarm})
}

// Subscribe streams merged telemetry snapshots. Nothing is sent until
// position, altitude and yaw have each been reported at least once. Only the
// newest snapshot is kept for a slow reader. cancel stops the stream and closes the channel.
func (l *Link) Subscribe() (<-chan flight.Telemetry, func()) {
	id, lines := l.mux.Subscribe()
	out := make(chan flight.Telemetry, 1)

	go func() {
		defer close(out)
		var snap flight.Telemetry
		for line := range lines {
			updated, err := ApplyLine(&snap, line)
			if err != nil {
				monitoring.Logf("flightlink: ignoring line %q: %v", line, err)
				continue
			}
			if !updated || !snap.Complete() {
				continue
			}
			select {
			case out <- snap:
			default:
				// replace the stale value
				select {
				case <-out:
				default:
				}
				out <- snap
			}
		}
	}()

	return out, func() { l.mux.Unsubscribe(id) }
}
