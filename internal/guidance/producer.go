package guidance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/monitoring"
	"github.com/banshee-data/precision.land/internal/timeutil"
	"github.com/banshee-data/precision.land/internal/vision"
)

// ErrSourceClosed is returned by a producer step when its source has no more
// data. The producer exits without being stopped.
var ErrSourceClosed = errors.New("producer source closed")

const errorBackoff = 250 * time.Millisecond

// Producer repeatedly runs a step function on its own goroutine until Stop.
type Producer struct {
	name   string
	step   func(ctx context.Context) error
	finish func()

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newProducer(name string, step func(ctx context.Context) error) *Producer {
	return &Producer{name: name, step: step}
}

// Name identifies the producer in logs.
func (p *Producer) Name() string { return p.name }

// Running reports whether the producer loop is active.
func (p *Producer) Running() bool { return p.running.Load() }

// Start launches the producer goroutine. Starting a running producer is an
// error.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("%s producer already started", p.name)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.loop(ctx, p.done)
	return nil
}

// Stop clears the running flag, wakes the step and waits for the goroutine to
// exit. It is safe to call repeatedly and before Start.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running.Store(false)
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Producer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.running.Store(false)
	if p.finish != nil {
		defer p.finish()
	}

	for p.running.Load() {
		err := p.step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrSourceClosed) {
			monitoring.Logf("%s producer: source closed", p.name)
			return
		}
		monitoring.Logf("%s producer: %v", p.name, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(errorBackoff):
		}
	}
}

// NewVisionProducer pulls frames from det, runs them through tracker and
// publishes each resulting sample to out. A failed frame is processed as an
// empty one.
func NewVisionProducer(det vision.Detector, tracker *vision.Tracker, out *Latest[vision.Sample]) *Producer {
	return newProducer("vision", func(ctx context.Context) error {
		frame, err := det.Detect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				out.Store(tracker.Process(vision.Frame{}))
			}
			return err
		}
		out.Store(tracker.Process(frame))
		return nil
	})
}

// TelemetrySnapshot is the newest telemetry plus derived state.
type TelemetrySnapshot struct {
	flight.Telemetry
	Landed     bool      // relative altitude below the landed threshold
	ReceivedAt time.Time // when the producer received it
}

// NewTelemetryProducer subscribes to src on start and publishes every update
// to out. The subscription is released when the producer exits.
func NewTelemetryProducer(src flight.TelemetrySource, landedAltitude float64, clock timeutil.Clock, out *Latest[TelemetrySnapshot]) *Producer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	// Only touched from the producer goroutine.
	var (
		updates <-chan flight.Telemetry
		cancel  func()
	)
	p := newProducer("telemetry", func(ctx context.Context) error {
		if updates == nil {
			updates, cancel = src.Subscribe()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-updates:
			if !ok {
				return ErrSourceClosed
			}
			out.Store(TelemetrySnapshot{
				Telemetry:  t,
				Landed:     float64(t.RelativeAltitude) < landedAltitude,
				ReceivedAt: clock.Now(),
			})
			return nil
		}
	})
	p.finish = func() {
		if cancel != nil {
			cancel()
		}
		updates, cancel = nil, nil
	}
	return p
}
