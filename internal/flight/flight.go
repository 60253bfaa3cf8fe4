// Package flight defines the boundary between landing guidance and the
// flight-control layer: the command sink, the telemetry snapshot, and the
// abstract commands the state machines emit.
package flight

import (
	"context"
	"fmt"
)

// PositionNED is a local North-East-Down position in metres.
type PositionNED struct {
	North float64 `json:"north_m"`
	East  float64 `json:"east_m"`
	Down  float64 `json:"down_m"`
}

// Fields is a set of telemetry values.
type Fields uint8

const (
	FieldPosition Fields = 1 << iota
	FieldAltitude
	FieldYaw

	AllFields = FieldPosition | FieldAltitude | FieldYaw
)

// Telemetry is the latest vehicle state as reported by the flight controller.
type Telemetry struct {
	Position         PositionNED `json:"position"`
	RelativeAltitude float32     `json:"relative_altitude_m"`
	Yaw              float32     `json:"yaw_deg"`

	Received Fields `json:"-"` // values reported so far
}

// Complete reports whether position, altitude and yaw have all been reported.
// Zero values in an incomplete snapshot are placeholders, not a pose.
func (t Telemetry) Complete() bool { return t.Received&AllFields == AllFields }

// VelocityBody is a body-frame velocity setpoint.
type VelocityBody struct {
	Forward float64 `json:"forward_m_s"`
	Right   float64 `json:"right_m_s"`
	Down    float64 `json:"down_m_s"`
	YawRate float64 `json:"yaw_rate_deg_s"`
}

// PositionSetpoint is a local NED position setpoint with heading.
type PositionSetpoint struct {
	PositionNED
	Yaw float64 `json:"yaw_deg"`
}

// Commander is the flight-command sink. Every result is advisory: callers log
// failures and carry on.
type Commander interface {
	SetVelocityBody(ctx context.Context, v VelocityBody) error
	SetPositionNED(ctx context.Context, p PositionSetpoint) error
	Arm(ctx context.Context) error
	Takeoff(ctx context.Context, altitude float64) error
	Land(ctx context.Context) error
	Disarm(ctx context.Context) error
}

// TelemetrySource pushes telemetry updates to a subscriber at the provider's
// own cadence.
type TelemetrySource interface {
	// Subscribe returns a channel of updates and a cancel function.
	Subscribe() (<-chan Telemetry, func())
}

// Kind identifies the flight command a state machine wants issued this tick.
type Kind int

const (
	None Kind = iota
	Velocity
	Position
	LandAndDisarm
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Velocity:
		return "velocity"
	case Position:
		return "position"
	case LandAndDisarm:
		return "land_and_disarm"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is one abstract flight command. Only the field matching Kind is set.
type Command struct {
	Kind     Kind
	Velocity VelocityBody
	Position PositionSetpoint
}

// Hover returns a zero-velocity command.
func Hover() Command {
	return Command{Kind: Velocity}
}

// HoldAt returns a position command for p with heading yaw.
func HoldAt(p PositionNED, yaw float64) Command {
	return Command{Kind: Position, Position: PositionSetpoint{PositionNED: p, Yaw: yaw}}
}

// Dispatch sends cmd through c. LandAndDisarm only issues Land; disarming is
// scheduled separately once the vehicle has had time to settle.
func Dispatch(ctx context.Context, c Commander, cmd Command) error {
	switch cmd.Kind {
	case Velocity:
		return c.SetVelocityBody(ctx, cmd.Velocity)
	case Position:
		return c.SetPositionNED(ctx, cmd.Position)
	case LandAndDisarm:
		return c.Land(ctx)
	}
	return nil
}
