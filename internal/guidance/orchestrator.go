package guidance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/control"
	"github.com/banshee-data/precision.land/internal/detection"
	"github.com/banshee-data/precision.land/internal/filter"
	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/flightlog"
	"github.com/banshee-data/precision.land/internal/landing"
	"github.com/banshee-data/precision.land/internal/monitoring"
	"github.com/banshee-data/precision.land/internal/timeutil"
	"github.com/banshee-data/precision.land/internal/vision"
)

// ErrBusy is returned by Submit when the request queue is full.
var ErrBusy = errors.New("orchestrator request queue full")

// Session outcomes written to the flight log.
const (
	OutcomeLanded  = "landed"
	OutcomeAborted = "aborted"
)

// RequestKind identifies an external trigger.
type RequestKind int

const (
	BeginLanding RequestKind = iota
	AbortLanding
)

func (k RequestKind) String() string {
	switch k {
	case BeginLanding:
		return "begin"
	case AbortLanding:
		return "abort"
	}
	return fmt.Sprintf("request(%d)", int(k))
}

// Request is an external trigger applied on the orchestrator goroutine at the
// start of the next tick.
type Request struct {
	Kind RequestKind
}

// Recorder receives flight log events. Calls must not block.
type Recorder interface {
	BeginSession(at time.Time, start flight.PositionNED, yaw float64) string
	EndSession(id string, at time.Time, outcome string)
	RecordTransition(tr flightlog.TransitionRecord)
	RecordTick(t flightlog.TickRecord)
}

// Config holds the loop-level settings.
type Config struct {
	LoopRateHz           float64
	SafetyFloor          float64 // metres; below it ticks are skipped outside LANDING
	StatusInterval       time.Duration
	DispatchFailureLimit int
	DisarmDelay          time.Duration
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		LoopRateHz:           cfg.GetLoopRateHz(),
		SafetyFloor:          cfg.GetSafetyFloor(),
		StatusInterval:       cfg.GetStatusInterval(),
		DispatchFailureLimit: cfg.GetDispatchFailureLimit(),
		DisarmDelay:          cfg.GetDisarmDelay(),
	}
}

// Deps are the collaborators of an Orchestrator. Status and Recorder are
// optional.
type Deps struct {
	Commander flight.Commander
	Samples   *Latest[vision.Sample]
	Telemetry *Latest[TelemetrySnapshot]
	Clock     timeutil.Clock
	Status    func(msg string)
	Recorder  Recorder
}

// Report describes one tick.
type Report struct {
	At        time.Time
	Skipped   bool // below the safety floor outside LANDING
	Detection detection.Mode
	Landing   landing.Mode
	Altitude  float64
	ErrorX    float64 // filtered, valid when Detected
	ErrorY    float64
	Detected  bool
	Visible   bool
	Guidance  control.Output
	Command   flight.Command
	Err       error // dispatch error
}

// Orchestrator runs the guidance pipeline. Tick and Run must be called from a
// single goroutine; Submit may be called from any goroutine.
type Orchestrator struct {
	cfg       Config
	clock     timeutil.Clock
	commander flight.Commander
	samples   *Latest[vision.Sample]
	telemetry *Latest[TelemetrySnapshot]
	status    func(string)
	recorder  Recorder

	conditioner *filter.Conditioner
	bank        *control.Bank
	confidence  *detection.Machine
	procedure   *landing.Procedure

	requests chan Request

	lastTick   time.Time
	lastStatus time.Time
	failures   int
	disarmAt   time.Time
	session    string
}

// New builds an Orchestrator and its pipeline stages from cfg.
func New(cfg *config.TuningConfig, deps Deps) (*Orchestrator, error) {
	if deps.Commander == nil {
		return nil, errors.New("orchestrator requires a flight commander")
	}
	if deps.Samples == nil || deps.Telemetry == nil {
		return nil, errors.New("orchestrator requires sample and telemetry cells")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	conditioner, err := filter.NewConditioner(cfg.GetFilterAlpha())
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}
	bank, err := control.NewBank(control.ConfigFromTuning(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to build PID bank: %w", err)
	}
	confidence, err := detection.NewMachine(detection.ConfigFromTuning(cfg), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to build detection machine: %w", err)
	}
	procedure, err := landing.NewProcedure(landing.ConfigFromTuning(cfg), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to build landing procedure: %w", err)
	}

	o := &Orchestrator{
		cfg:         ConfigFromTuning(cfg),
		clock:       clock,
		commander:   deps.Commander,
		samples:     deps.Samples,
		telemetry:   deps.Telemetry,
		status:      deps.Status,
		recorder:    deps.Recorder,
		conditioner: conditioner,
		bank:        bank,
		confidence:  confidence,
		procedure:   procedure,
		requests:    make(chan Request, 8),
	}
	if o.cfg.LoopRateHz <= 0 {
		return nil, fmt.Errorf("loop rate must be positive, got %f", o.cfg.LoopRateHz)
	}
	return o, nil
}

// Period is the tick interval.
func (o *Orchestrator) Period() time.Duration {
	return time.Duration(float64(time.Second) / o.cfg.LoopRateHz)
}

// Procedure exposes the landing state machine for inspection.
func (o *Orchestrator) Procedure() *landing.Procedure { return o.procedure }

// Detection exposes the detection confidence machine for inspection.
func (o *Orchestrator) Detection() *detection.Machine { return o.confidence }

// Submit queues a request for the next tick without blocking.
func (o *Orchestrator) Submit(r Request) error {
	select {
	case o.requests <- r:
		return nil
	default:
		return ErrBusy
	}
}

// Run ticks at the configured rate until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.Period())
	defer ticker.Stop()
	monitoring.Logf("guidance loop running at %.1f Hz", o.cfg.LoopRateHz)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			o.Tick(ctx)
		}
	}
}

// Tick runs one pass of the pipeline: requests, detection read, telemetry
// read, filter, detection machine, PID bank, landing procedure, dispatch.
func (o *Orchestrator) Tick(ctx context.Context) Report {
	now := o.clock.Now()
	var dt time.Duration
	if !o.lastTick.IsZero() {
		dt = now.Sub(o.lastTick)
	}
	o.lastTick = now

	sample, sampleSeq := o.samples.Load()
	snap, telemetrySeq := o.telemetry.Load()
	hasTelemetry := telemetrySeq > 0 && snap.Complete()
	alt := float64(snap.RelativeAltitude)

	override := o.applyRequests(snap, hasTelemetry, now)
	o.disarmIfDue(ctx, now)

	rep := Report{At: now, Altitude: alt}

	if hasTelemetry && alt < o.cfg.SafetyFloor && o.procedure.Mode() != landing.Landing {
		rep.Skipped = true
	} else {
		o.step(&rep, sample, sampleSeq > 0, snap, hasTelemetry, dt)
	}
	if rep.Command.Kind == flight.None {
		rep.Command = override
	}
	rep.Detection = o.confidence.Mode()
	rep.Landing = o.procedure.Mode()

	if rep.Command.Kind != flight.None {
		rep.Err = o.dispatch(ctx, rep.Command)
	}

	if o.session != "" && o.recorder != nil && !rep.Skipped {
		o.recorder.RecordTick(flightlog.TickRecord{
			Session:       o.session,
			At:            now,
			DetectionMode: string(rep.Detection),
			LandingMode:   string(rep.Landing),
			Altitude:      alt,
			ErrorX:        rep.ErrorX,
			ErrorY:        rep.ErrorY,
			Velocity:      rep.Command.Velocity,
			Command:       rep.Command.Kind.String(),
		})
	}
	if rep.Command.Kind == flight.LandAndDisarm {
		o.endSession(now, OutcomeLanded)
	}

	o.reportStatus(now, rep, snap, hasTelemetry)
	return rep
}

func (o *Orchestrator) step(rep *Report, sample vision.Sample, hasSample bool, snap TelemetrySnapshot, hasTelemetry bool, dt time.Duration) {
	alt := rep.Altitude
	detected := hasSample && sample.Found

	o.confidence.SetCurrentRelativeAltitude(alt)
	mode := o.confidence.Update(detected)
	if tr, ok := o.confidence.LastTransition(); ok {
		o.recordTransition(flightlog.MachineDetection, string(tr.From), string(tr.To), tr.At, alt)
		if tr.To == detection.Tracking {
			// Cold restart after every gap in tracking.
			o.conditioner.Reset()
			o.bank.Reset()
		}
	}

	if detected {
		rep.ErrorX, rep.ErrorY = o.conditioner.Errors(sample.NormErrorX, sample.NormErrorY)
	}
	visible := detected && mode == detection.Tracking
	if visible {
		rep.Guidance = o.bank.Track(rep.ErrorX, rep.ErrorY, alt, dt)
	}
	rep.Detected = detected
	rep.Visible = visible

	// The saved altitude only describes the current search while the marker
	// is lost; Begin re-snapshots it for each attempt.
	var hold float64
	if mode != detection.Tracking {
		hold = o.confidence.NotDetectedAltitude()
	}
	rep.Command = o.procedure.Step(landing.Input{
		Telemetry:    snap.Telemetry,
		HasTelemetry: hasTelemetry,
		Detected:     detected,
		Visible:      visible,
		Guidance:     rep.Guidance,
		HoldAltitude: hold,
	})
	if tr, ok := o.procedure.LastTransition(); ok {
		o.recordTransition(flightlog.MachineLanding, string(tr.From), string(tr.To), tr.At, tr.Altitude)
		monitoring.Logf("landing: %s -> %s at %.2fm", tr.From, tr.To, tr.Altitude)
	}
	if rep.Command.Kind == flight.LandAndDisarm {
		o.disarmAt = rep.At.Add(o.cfg.DisarmDelay)
	}
}

func (o *Orchestrator) applyRequests(snap TelemetrySnapshot, hasTelemetry bool, now time.Time) flight.Command {
	var override flight.Command
	for {
		select {
		case r := <-o.requests:
			if cmd := o.apply(r, snap, hasTelemetry, now); cmd.Kind != flight.None {
				override = cmd
			}
		default:
			return override
		}
	}
}

func (o *Orchestrator) apply(r Request, snap TelemetrySnapshot, hasTelemetry bool, now time.Time) flight.Command {
	switch r.Kind {
	case BeginLanding:
		if !hasTelemetry {
			o.publish("landing rejected: no telemetry")
			return flight.Command{}
		}
		yaw := float64(snap.Yaw)
		res := o.procedure.Begin(snap.Position, yaw)
		if res == landing.AlreadyStarted {
			o.publish("landing already in progress")
			return flight.Command{}
		}
		o.conditioner.Reset()
		o.bank.Reset()
		o.confidence.SetCurrentRelativeAltitude(float64(snap.RelativeAltitude))
		o.confidence.SnapshotAltitude()
		o.disarmAt = time.Time{}
		if o.recorder != nil {
			o.session = o.recorder.BeginSession(now, snap.Position, yaw)
		}
		if tr, ok := o.procedure.LastTransition(); ok {
			o.recordTransition(flightlog.MachineLanding, string(tr.From), string(tr.To), tr.At, tr.Altitude)
		}
		o.publish(fmt.Sprintf("landing started at %.2fm", snap.RelativeAltitude))

	case AbortLanding:
		if o.procedure.Mode() == landing.Idle {
			o.publish("no landing in progress")
			return flight.Command{}
		}
		o.procedure.Abort()
		if tr, ok := o.procedure.LastTransition(); ok {
			o.recordTransition(flightlog.MachineLanding, string(tr.From), string(tr.To), tr.At, float64(snap.RelativeAltitude))
		}
		o.endSession(now, OutcomeAborted)
		o.publish("landing aborted")
		if hasTelemetry {
			return flight.HoldAt(snap.Position, float64(snap.Yaw))
		}

	default:
		monitoring.Logf("guidance: ignoring unknown request %s", r.Kind)
	}
	return flight.Command{}
}

func (o *Orchestrator) dispatch(ctx context.Context, cmd flight.Command) error {
	err := flight.Dispatch(ctx, o.commander, cmd)
	if err == nil {
		o.failures = 0
		return nil
	}
	o.failures++
	monitoring.Logf("guidance: %s command failed: %v", cmd.Kind, err)
	if o.failures == o.cfg.DispatchFailureLimit {
		monitoring.Warnf("%d consecutive flight command failures, last: %v", o.failures, err)
		o.publish(fmt.Sprintf("warning: %d consecutive flight command failures", o.failures))
	}
	return err
}

func (o *Orchestrator) disarmIfDue(ctx context.Context, now time.Time) {
	if o.disarmAt.IsZero() || now.Before(o.disarmAt) {
		return
	}
	o.disarmAt = time.Time{}
	if err := o.commander.Disarm(ctx); err != nil {
		monitoring.Warnf("disarm failed: %v", err)
		o.publish("warning: disarm failed")
		return
	}
	o.publish("disarmed")
}

func (o *Orchestrator) recordTransition(machine, from, to string, at time.Time, alt float64) {
	if o.recorder == nil || o.session == "" {
		return
	}
	o.recorder.RecordTransition(flightlog.TransitionRecord{
		Session:  o.session,
		Machine:  machine,
		From:     from,
		To:       to,
		At:       at,
		Altitude: alt,
	})
}

func (o *Orchestrator) endSession(now time.Time, outcome string) {
	if o.recorder == nil || o.session == "" {
		return
	}
	o.recorder.EndSession(o.session, now, outcome)
	o.session = ""
}

func (o *Orchestrator) publish(msg string) {
	monitoring.Logf("guidance: %s", msg)
	if o.status != nil {
		o.status(msg)
	}
}

func (o *Orchestrator) reportStatus(now time.Time, rep Report, snap TelemetrySnapshot, hasTelemetry bool) {
	if o.status == nil || o.cfg.StatusInterval <= 0 {
		return
	}
	if !o.lastStatus.IsZero() && now.Sub(o.lastStatus) < o.cfg.StatusInterval {
		return
	}
	o.lastStatus = now
	o.status(FormatStatus(rep, snap, hasTelemetry))
}

// FormatStatus renders the one-line periodic status.
func FormatStatus(rep Report, snap TelemetrySnapshot, hasTelemetry bool) string {
	if !hasTelemetry {
		return fmt.Sprintf("mode=%s detection=%s telemetry=none", rep.Landing, rep.Detection)
	}
	return fmt.Sprintf("mode=%s detection=%s alt=%.2f err=(%.3f,%.3f) landed=%t",
		rep.Landing, rep.Detection, rep.Altitude, rep.ErrorX, rep.ErrorY, snap.Landed)
}
