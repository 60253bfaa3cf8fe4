package landing

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/control"
	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

// Mode is the landing procedure state.
type Mode string

const (
	Idle           Mode = "IDLE"
	Waiting        Mode = "WAITING"
	AdjustPosition Mode = "ADJUST_POSITION"
	Circle         Mode = "CIRCLE"
	Landing        Mode = "LANDING"
)

// StartResult is returned by Begin.
type StartResult int

const (
	Started StartResult = iota
	AlreadyStarted
)

func (r StartResult) String() string {
	if r == AlreadyStarted {
		return "already_started"
	}
	return "started"
}

// Config holds the procedure timings and thresholds.
type Config struct {
	WaitDuration           time.Duration
	WaitDetectionThreshold int     // detections during WAITING needed to skip CIRCLE
	LandingFloor           float64 // metres; at or below it the approach ends in LANDING
	LossTimeout            time.Duration
	CircleRadius           float64 // metres
	CircleAngularRate      float64 // rad/s
	CircleRamp             time.Duration
	LandingWindow          time.Duration
	LandingDescentSpeed    float64 // m/s when the marker is not visible
	GroundAltitude         float64 // metres; at or below it LANDING finishes early
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WaitDuration:           cfg.GetWaitDuration(),
		WaitDetectionThreshold: cfg.GetWaitDetectionThreshold(),
		LandingFloor:           cfg.GetLandingFloor(),
		LossTimeout:            cfg.GetLossTimeout(),
		CircleRadius:           cfg.GetCircleRadius(),
		CircleAngularRate:      cfg.GetCircleAngularRate(),
		CircleRamp:             cfg.GetCircleRamp(),
		LandingWindow:          cfg.GetLandingWindow(),
		LandingDescentSpeed:    cfg.GetLandingDescentSpeed(),
		GroundAltitude:         cfg.GetGroundAltitude(),
	}
}

// Input is everything the procedure needs for one tick.
type Input struct {
	Telemetry    flight.Telemetry
	HasTelemetry bool

	Detected bool           // raw detection this tick
	Visible  bool           // detection confirmed by the confidence machine
	Guidance control.Output // valid when Visible

	// HoldAltitude is the relative altitude the circle sweep climbs back to.
	// Values at or below the altitude at which the sweep began are ignored.
	HoldAltitude float64
}

// Transition records a mode change.
type Transition struct {
	From, To Mode
	At       time.Time
	Altitude float64
}

// Procedure is the landing state machine. It is owned by a single goroutine.
type Procedure struct {
	cfg   Config
	clock timeutil.Clock

	mode          Mode
	started       bool
	startPosition flight.PositionNED
	startYaw      float64

	waitStart      time.Time
	detectionCount int

	lossStart    *time.Time
	lossPosition flight.PositionNED

	circleStart    time.Time
	circleCentre   flight.PositionNED
	circleAltitude float64

	landingStart time.Time

	last *Transition
}

// NewProcedure returns an idle Procedure.
func NewProcedure(cfg Config, clock timeutil.Clock) (*Procedure, error) {
	if cfg.WaitDuration <= 0 || cfg.LossTimeout <= 0 || cfg.LandingWindow <= 0 {
		return nil, fmt.Errorf("procedure durations must be positive: %+v", cfg)
	}
	if cfg.LandingFloor < 0 || cfg.GroundAltitude < 0 {
		return nil, fmt.Errorf("procedure altitudes must be non-negative: %+v", cfg)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Procedure{cfg: cfg, clock: clock, mode: Idle}, nil
}

// Mode returns the current mode.
func (p *Procedure) Mode() Mode { return p.mode }

// Started reports whether an attempt is in progress.
func (p *Procedure) Started() bool { return p.started }

// StartPose returns the position and yaw recorded by Begin.
func (p *Procedure) StartPose() (flight.PositionNED, float64) {
	return p.startPosition, p.startYaw
}

// DetectionCount returns the detections counted so far in WAITING.
func (p *Procedure) DetectionCount() int { return p.detectionCount }

// LastTransition returns the transition made by the most recent call that
// changed mode, if that call was the latest.
func (p *Procedure) LastTransition() (Transition, bool) {
	if p.last == nil {
		return Transition{}, false
	}
	return *p.last, true
}

// Begin starts an attempt from the given pose. A second call while an attempt
// is running changes nothing and returns AlreadyStarted.
func (p *Procedure) Begin(pos flight.PositionNED, yaw float64) StartResult {
	p.last = nil
	if p.started {
		return AlreadyStarted
	}
	p.started = true
	p.startPosition = pos
	p.startYaw = yaw
	p.detectionCount = 0
	p.lossStart = nil
	p.enter(Waiting, -pos.Down)
	p.waitStart = p.clock.Now()
	return Started
}

// Abort ends the attempt without landing and returns to IDLE.
func (p *Procedure) Abort() {
	p.last = nil
	if p.mode == Idle {
		return
	}
	p.started = false
	p.enter(Idle, 0)
}

// Step advances the procedure by one tick and returns the command to issue.
func (p *Procedure) Step(in Input) flight.Command {
	p.last = nil
	if p.mode == Idle || !in.HasTelemetry {
		return flight.Command{}
	}

	switch p.mode {
	case Waiting:
		return p.waiting(in)
	case AdjustPosition:
		return p.adjust(in)
	case Circle:
		return p.circle(in)
	case Landing:
		return p.landing(in)
	}
	return flight.Command{}
}

func (p *Procedure) waiting(in Input) flight.Command {
	if p.clock.Since(p.waitStart) >= p.cfg.WaitDuration {
		alt := float64(in.Telemetry.RelativeAltitude)
		if p.detectionCount > p.cfg.WaitDetectionThreshold {
			p.lossStart = nil
			p.enter(AdjustPosition, alt)
		} else {
			p.beginCircle(in.Telemetry)
		}
		p.detectionCount = 0
		return flight.HoldAt(p.startPosition, p.startYaw)
	}
	if in.Detected {
		p.detectionCount++
	}
	return flight.HoldAt(p.startPosition, p.startYaw)
}

func (p *Procedure) adjust(in Input) flight.Command {
	alt := float64(in.Telemetry.RelativeAltitude)
	if alt <= p.cfg.LandingFloor {
		p.beginLanding(alt)
		return flight.Hover()
	}

	if in.Visible {
		p.lossStart = nil
		return velocity(in.Guidance.Forward, in.Guidance.Right, in.Guidance.Down)
	}

	now := p.clock.Now()
	if p.lossStart == nil {
		p.lossStart = &now
		p.lossPosition = in.Telemetry.Position
	}
	if now.Sub(*p.lossStart) >= p.cfg.LossTimeout {
		p.lossStart = nil
		p.beginCircle(in.Telemetry)
		return flight.HoldAt(p.circleCentre, p.startYaw)
	}
	return flight.HoldAt(p.lossPosition, p.startYaw)
}

func (p *Procedure) circle(in Input) flight.Command {
	alt := float64(in.Telemetry.RelativeAltitude)
	if alt <= p.cfg.LandingFloor {
		p.beginLanding(alt)
		return flight.Hover()
	}
	if in.Visible {
		p.lossStart = nil
		p.enter(AdjustPosition, alt)
		return velocity(in.Guidance.Forward, in.Guidance.Right, in.Guidance.Down)
	}

	sp := p.circleSetpoint(p.clock.Since(p.circleStart))
	if in.HoldAltitude > p.circleAltitude {
		sp.Down = downAt(in.Telemetry, in.HoldAltitude)
	}
	return flight.HoldAt(sp, p.startYaw)
}

// downAt converts a relative altitude into the NED Down coordinate using the
// current fix: home ground sits at Position.Down + RelativeAltitude.
func downAt(t flight.Telemetry, alt float64) float64 {
	return t.Position.Down + float64(t.RelativeAltitude) - alt
}

// circleSetpoint is the sweep position t after entering CIRCLE. During the
// ramp the radius grows linearly from zero so the setpoint leaves the centre
// without a jump.
func (p *Procedure) circleSetpoint(t time.Duration) flight.PositionNED {
	secs := t.Seconds()
	radius := p.cfg.CircleRadius
	if p.cfg.CircleRamp > 0 && t < p.cfg.CircleRamp {
		radius *= secs / p.cfg.CircleRamp.Seconds()
	}
	angle := p.cfg.CircleAngularRate * secs
	return flight.PositionNED{
		North: p.circleCentre.North + radius*math.Cos(angle),
		East:  p.circleCentre.East + radius*math.Sin(angle),
		Down:  p.circleCentre.Down,
	}
}

func (p *Procedure) landing(in Input) flight.Command {
	alt := float64(in.Telemetry.RelativeAltitude)
	if p.clock.Since(p.landingStart) >= p.cfg.LandingWindow || alt <= p.cfg.GroundAltitude {
		p.started = false
		p.enter(Idle, alt)
		return flight.Command{Kind: flight.LandAndDisarm}
	}
	if in.Visible {
		return velocity(in.Guidance.Forward, in.Guidance.Right, in.Guidance.Down)
	}
	return velocity(0, 0, p.cfg.LandingDescentSpeed)
}

func (p *Procedure) beginCircle(t flight.Telemetry) {
	p.circleCentre = t.Position
	p.circleAltitude = float64(t.RelativeAltitude)
	p.circleStart = p.clock.Now()
	p.enter(Circle, float64(t.RelativeAltitude))
}

func (p *Procedure) beginLanding(alt float64) {
	p.landingStart = p.clock.Now()
	p.enter(Landing, alt)
}

func (p *Procedure) enter(to Mode, alt float64) {
	p.last = &Transition{From: p.mode, To: to, At: p.clock.Now(), Altitude: alt}
	p.mode = to
}

func velocity(fwd, right, down float64) flight.Command {
	return flight.Command{
		Kind:     flight.Velocity,
		Velocity: flight.VelocityBody{Forward: fwd, Right: right, Down: down},
	}
}
