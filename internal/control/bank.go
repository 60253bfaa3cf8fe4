package control

import (
	"math"
	"time"

	"github.com/banshee-data/precision.land/internal/config"
)

// Config configures a Bank.
type Config struct {
	Forward, Lateral, Descent Gains
	IntegralLimit             float64
	MaxHorizontalSpeed        float64 // m/s, 0 disables the clamp
	AltitudeFeedback          bool
	CreepSpeed                float64 // m/s down while off-centre
	BandHeight                float64
	Bands                     []config.AltitudeBand
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	gains := func(axis string) Gains {
		kp, ki, kd := cfg.Gains(axis)
		return Gains{Kp: kp, Ki: ki, Kd: kd}
	}
	return Config{
		Forward:            gains("forward"),
		Lateral:            gains("lateral"),
		Descent:            gains("descent"),
		IntegralLimit:      cfg.GetIntegralLimit(),
		MaxHorizontalSpeed: cfg.GetMaxHorizontalSpeed(),
		AltitudeFeedback:   cfg.GetAltitudeFeedback(),
		CreepSpeed:         cfg.GetCreepDescentSpeed(),
		BandHeight:         cfg.GetBandHeight(),
		Bands:              cfg.GetAltitudeBands(),
	}
}

// Output is one tick of bank output in the body frame.
type Output struct {
	Forward  float64 // m/s
	Right    float64 // m/s
	Down     float64 // m/s, positive descends
	Tier     Tier
	Centered bool
}

// Bank owns the forward, lateral and descent loops and the altitude schedule.
type Bank struct {
	Forward, Lateral, Descent *Axis

	schedule *Schedule
	cfg      Config
}

// NewBank builds a Bank. A construction error means the bank must not run.
func NewBank(cfg Config) (*Bank, error) {
	fwd, err := NewAxis(cfg.Forward, cfg.IntegralLimit)
	if err != nil {
		return nil, err
	}
	lat, err := NewAxis(cfg.Lateral, cfg.IntegralLimit)
	if err != nil {
		return nil, err
	}
	desc, err := NewAxis(cfg.Descent, cfg.IntegralLimit)
	if err != nil {
		return nil, err
	}
	sched, err := NewSchedule(cfg.BandHeight, cfg.Bands)
	if err != nil {
		return nil, err
	}
	return &Bank{Forward: fwd, Lateral: lat, Descent: desc, schedule: sched, cfg: cfg}, nil
}

// Schedule returns the altitude schedule.
func (b *Bank) Schedule() *Schedule { return b.schedule }

// Track computes velocities from smoothed normalised errors dx (positive:
// marker right of centre) and dy (positive: marker below centre) at the
// given relative altitude.
func (b *Bank) Track(dx, dy, altitude float64, dt time.Duration) Output {
	out := Output{
		Forward: b.limitHorizontal(b.Forward.Update(-dy, dt)),
		Right:   b.limitHorizontal(b.Lateral.Update(dx, dt)),
		Tier:    b.schedule.Lookup(altitude),
	}
	out.Centered = math.Abs(dx) < out.Tier.Tolerance && math.Abs(dy) < out.Tier.Tolerance

	switch {
	case !out.Centered:
		out.Down = b.cfg.CreepSpeed
	case b.cfg.AltitudeFeedback:
		out.Down = clamp(b.Descent.Update(altitude, dt), b.cfg.CreepSpeed, out.Tier.DescentSpeed)
	default:
		out.Down = out.Tier.DescentSpeed
	}
	return out
}

// Reset zeroes all three loops.
func (b *Bank) Reset() {
	b.Forward.Reset()
	b.Lateral.Reset()
	b.Descent.Reset()
}

func (b *Bank) limitHorizontal(v float64) float64 {
	if b.cfg.MaxHorizontalSpeed <= 0 {
		return v
	}
	return clamp(v, -b.cfg.MaxHorizontalSpeed, b.cfg.MaxHorizontalSpeed)
}
