package flightlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/monitoring"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

const (
	tickBatchSize = 64
	flushInterval = time.Second
)

type eventKind int

const (
	eventBegin eventKind = iota
	eventEnd
	eventTransition
	eventTick
)

type event struct {
	kind       eventKind
	session    Session
	transition TransitionRecord
	tick       TickRecord
}

// Recorder writes flight log events on its own goroutine. Every Record call
// is non-blocking: when the buffer is full the event is dropped and counted.
type Recorder struct {
	store     *Store
	clock     timeutil.Clock
	tickEvery int

	events   chan event
	ticks    atomic.Uint64
	dropped  atomic.Uint64
	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRecorder returns a Recorder writing to store. buffer is the event queue
// depth; only every tickEvery-th tick is kept.
func NewRecorder(store *Store, buffer, tickEvery int, clock timeutil.Clock) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	if tickEvery < 1 {
		tickEvery = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{
		store:     store,
		clock:     clock,
		tickEvery: tickEvery,
		events:    make(chan event, buffer),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// NewRecorderFromTuning builds a Recorder using the flight log tuning values.
func NewRecorderFromTuning(store *Store, cfg *config.TuningConfig, clock timeutil.Clock) *Recorder {
	return NewRecorder(store, cfg.GetFlightLogBuffer(), cfg.GetFlightLogTickEvery(), clock)
}

// Start launches the writer goroutine. It must be called at most once.
func (r *Recorder) Start() {
	r.running.Store(true)
	go r.run()
}

// Stop drains queued events and waits for the writer to finish. Safe to call
// more than once and before Start.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.running.Load() {
		<-r.done
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// BeginSession records a new landing attempt and returns its ID.
func (r *Recorder) BeginSession(at time.Time, start flight.PositionNED, yaw float64) string {
	id := uuid.NewString()
	r.enqueue(event{kind: eventBegin, session: Session{ID: id, StartedAt: at, Start: start, StartYaw: yaw}})
	return id
}

// EndSession records the outcome of a landing attempt.
func (r *Recorder) EndSession(id string, at time.Time, outcome string) {
	r.enqueue(event{kind: eventEnd, session: Session{ID: id, EndedAt: at, Outcome: outcome}})
}

// RecordTransition records a state machine mode change.
func (r *Recorder) RecordTransition(tr TransitionRecord) {
	r.enqueue(event{kind: eventTransition, transition: tr})
}

// RecordTick records a control tick, subject to the tickEvery decimation.
func (r *Recorder) RecordTick(t TickRecord) {
	n := r.ticks.Add(1)
	if (n-1)%uint64(r.tickEvery) != 0 {
		return
	}
	r.enqueue(event{kind: eventTick, tick: t})
}

func (r *Recorder) enqueue(e event) {
	select {
	case r.events <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			monitoring.Warnf("flight log queue full, %d events dropped", n)
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := r.clock.NewTicker(flushInterval)
	defer ticker.Stop()

	ctx := context.Background()
	var batch []TickRecord
	flush := func() {
		if err := r.store.InsertTicks(ctx, batch); err != nil {
			monitoring.Logf("flight log: %v", err)
		}
		batch = batch[:0]
	}

	apply := func(e event) {
		if e.kind == eventTick {
			batch = append(batch, e.tick)
			if len(batch) >= tickBatchSize {
				flush()
			}
			return
		}
		// Keep rows in order so ticks never precede their session.
		flush()
		var err error
		switch e.kind {
		case eventBegin:
			err = r.store.InsertSession(ctx, e.session)
		case eventEnd:
			err = r.store.EndSession(ctx, e.session.ID, e.session.EndedAt, e.session.Outcome)
		case eventTransition:
			err = r.store.InsertTransition(ctx, e.transition)
		}
		if err != nil {
			monitoring.Logf("flight log: %v", err)
		}
	}

	for {
		select {
		case e := <-r.events:
			apply(e)
		case <-ticker.C():
			flush()
		case <-r.stopCh:
			for {
				select {
				case e := <-r.events:
					apply(e)
				default:
					flush()
					return
				}
			}
		}
	}
}
