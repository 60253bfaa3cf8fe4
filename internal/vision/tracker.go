package vision

import (
	"time"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/geometry"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

// Tracker converts frames into samples. It is used by a single producer
// goroutine.
type Tracker struct {
	validator *geometry.Validator
	grace     time.Duration
	clock     timeutil.Clock

	last    Sample
	lastAt  time.Time // clock time the last found sample was produced
	hasLast bool
}

// NewTracker returns a Tracker. A zero grace disables flicker absorption.
func NewTracker(cfg geometry.Config, grace time.Duration, clock timeutil.Clock) (*Tracker, error) {
	v, err := geometry.NewValidator(cfg)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{validator: v, grace: grace, clock: clock}, nil
}

// NewTrackerFromTuning builds a Tracker from a loaded TuningConfig.
func NewTrackerFromTuning(cfg *config.TuningConfig, clock timeutil.Clock) (*Tracker, error) {
	return NewTracker(geometry.ConfigFromTuning(cfg), cfg.GetDetectionGrace(), clock)
}

// Process validates the frame's candidates and returns the sample to publish.
// A frame with no candidates re-emits the last found sample while it is
// younger than the grace window.
func (t *Tracker) Process(f Frame) Sample {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = t.clock.Now()
	}

	if len(f.Candidates) == 0 {
		if t.hasLast && t.clock.Since(t.lastAt) < t.grace {
			return t.last
		}
		return Sample{Timestamp: ts}
	}

	q, ok := t.validator.Select(f.Candidates, f.Width, f.Height)
	if !ok {
		return Sample{Timestamp: ts}
	}
	s := NewSample(q, f.Width, f.Height, ts)
	t.last, t.lastAt, t.hasLast = s, t.clock.Now(), true
	return s
}
