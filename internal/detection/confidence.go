// Package detection classifies marker visibility over time into tracking,
// searching and lost modes with hysteresis.
package detection

import (
	"fmt"
	"time"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

// Mode is the detection confidence state.
type Mode string

const (
	Tracking    Mode = "TRACKING"
	Searching   Mode = "SEARCHING"
	NotDetected Mode = "NOT_DETECTED"
)

// Config holds the confidence thresholds.
type Config struct {
	NoDetectionThreshold   int           // consecutive misses before TRACKING → SEARCHING
	FirstAcquireDetections int           // detections needed before the first tracking episode
	ReacquireDetections    int           // detections needed once tracking has happened
	SearchTimeout          time.Duration // misses for this long in SEARCHING → NOT_DETECTED
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		NoDetectionThreshold:   cfg.GetNoDetectionThreshold(),
		FirstAcquireDetections: cfg.GetFirstAcquireDetections(),
		ReacquireDetections:    cfg.GetReacquireDetections(),
		SearchTimeout:          cfg.GetSearchTimeout(),
	}
}

// Transition records a mode change returned by Update.
type Transition struct {
	From, To Mode
	At       time.Time
}

// Machine is the detection confidence state machine. It is owned by a single
// goroutine and is not safe for concurrent use.
type Machine struct {
	cfg   Config
	clock timeutil.Clock

	mode            Mode
	detectionCount  int
	missCount       int
	searchStart     time.Time
	hasTrackedOnce  bool
	savedAltitude   float64
	currentAltitude float64

	last *Transition
}

// NewMachine returns a Machine in TRACKING.
func NewMachine(cfg Config, clock timeutil.Clock) (*Machine, error) {
	if cfg.NoDetectionThreshold < 1 || cfg.FirstAcquireDetections < 1 || cfg.ReacquireDetections < 1 {
		return nil, fmt.Errorf("detection thresholds must be >= 1: %+v", cfg)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Machine{
		cfg:         cfg,
		clock:       clock,
		mode:        Tracking,
		searchStart: clock.Now(),
	}, nil
}

// SetCurrentRelativeAltitude records the altitude the next transition will
// snapshot.
func (m *Machine) SetCurrentRelativeAltitude(alt float64) {
	m.currentAltitude = alt
}

// NotDetectedAltitude is the altitude snapshotted on the last transition into
// SEARCHING or NOT_DETECTED. The search pattern holds it.
func (m *Machine) NotDetectedAltitude() float64 {
	return m.savedAltitude
}

// SnapshotAltitude saves the current altitude as NotDetectedAltitude without a
// transition. Called when a landing attempt starts.
func (m *Machine) SnapshotAltitude() {
	m.savedAltitude = m.currentAltitude
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode { return m.mode }

// HasTrackedOnce reports whether a tracking episode has completed.
func (m *Machine) HasTrackedOnce() bool { return m.hasTrackedOnce }

// LastTransition returns the transition made by the most recent Update, if any.
func (m *Machine) LastTransition() (Transition, bool) {
	if m.last == nil {
		return Transition{}, false
	}
	return *m.last, true
}

// Update advances the machine by one tick and returns the resulting mode.
func (m *Machine) Update(detected bool) Mode {
	m.last = nil
	now := m.clock.Now()

	switch m.mode {
	case Tracking:
		if detected {
			m.missCount = 0
			break
		}
		m.missCount++
		if m.missCount >= m.cfg.NoDetectionThreshold {
			m.searchStart = now
			m.enter(Searching, now)
		}

	case Searching:
		if detected {
			m.detectionCount++
			need := m.cfg.FirstAcquireDetections
			if m.hasTrackedOnce {
				need = m.cfg.ReacquireDetections
			}
			if m.detectionCount >= need {
				m.hasTrackedOnce = true
				m.enter(Tracking, now)
			}
			break
		}
		if now.Sub(m.searchStart) >= m.cfg.SearchTimeout {
			m.enter(NotDetected, now)
		}

	case NotDetected:
		if detected {
			m.searchStart = now
			m.enter(Searching, now)
		}
	}
	return m.mode
}

func (m *Machine) enter(to Mode, now time.Time) {
	if to != Tracking {
		m.savedAltitude = m.currentAltitude
	}
	m.last = &Transition{From: m.mode, To: to, At: now}
	m.mode = to
	m.detectionCount = 0
	m.missCount = 0
}
