package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

const tick = 50 * time.Millisecond

func newTestMachine(t *testing.T) (*Machine, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	m, err := NewMachine(ConfigFromTuning(config.EmptyTuningConfig()), clock)
	require.NoError(t, err)
	return m, clock
}

// step advances the clock by one tick and updates the machine.
func step(m *Machine, clock *timeutil.MockClock, detected bool) Mode {
	clock.Advance(tick)
	return m.Update(detected)
}

func TestMachine_StartsTracking(t *testing.T) {
	m, _ := newTestMachine(t)
	assert.Equal(t, Tracking, m.Mode())
	assert.False(t, m.HasTrackedOnce())
}

func TestMachine_LosesTrackAfterThreshold(t *testing.T) {
	m, clock := newTestMachine(t)
	m.SetCurrentRelativeAltitude(3.2)

	for i := 0; i < 19; i++ {
		require.Equal(t, Tracking, step(m, clock, false), "miss %d", i+1)
	}
	assert.Equal(t, Searching, step(m, clock, false))
	assert.Equal(t, 3.2, m.NotDetectedAltitude())

	tr, ok := m.LastTransition()
	require.True(t, ok)
	assert.Equal(t, Transition{From: Tracking, To: Searching, At: clock.Now()}, tr)
}

func TestMachine_DetectionResetsMissCount(t *testing.T) {
	m, clock := newTestMachine(t)
	for i := 0; i < 19; i++ {
		step(m, clock, false)
	}
	step(m, clock, true)
	for i := 0; i < 19; i++ {
		require.Equal(t, Tracking, step(m, clock, false))
	}
}

func TestMachine_SearchTimesOut(t *testing.T) {
	m, clock := newTestMachine(t)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	require.Equal(t, Searching, m.Mode())

	// 99 ticks is 4.95 s of search
	for i := 0; i < 99; i++ {
		require.Equal(t, Searching, step(m, clock, false), "tick %d", i)
	}
	assert.Equal(t, NotDetected, step(m, clock, false))
}

func TestMachine_FirstAcquisitionNeedsThirty(t *testing.T) {
	m, clock := newTestMachine(t)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}

	for i := 0; i < 29; i++ {
		require.Equal(t, Searching, step(m, clock, true))
	}
	assert.Equal(t, Tracking, step(m, clock, true))
	assert.True(t, m.HasTrackedOnce())
}

func TestMachine_ReacquiresOnSingleDetection(t *testing.T) {
	m, clock := newTestMachine(t)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	for i := 0; i < 30; i++ {
		step(m, clock, true)
	}
	require.True(t, m.HasTrackedOnce())

	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	require.Equal(t, Searching, m.Mode())
	assert.Equal(t, Tracking, step(m, clock, true))
}

func TestMachine_AbsentSixSecondsAtTwoMetres(t *testing.T) {
	m, clock := newTestMachine(t)
	m.SetCurrentRelativeAltitude(2.0)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	require.Equal(t, Searching, m.Mode())

	for elapsed := time.Duration(0); elapsed < 6*time.Second; elapsed += tick {
		m.SetCurrentRelativeAltitude(2.0)
		step(m, clock, false)
	}
	assert.Equal(t, NotDetected, m.Mode())
	assert.Equal(t, 2.0, m.NotDetectedAltitude())
}

func TestMachine_NotDetectedBackToSearching(t *testing.T) {
	m, clock := newTestMachine(t)
	m.SetCurrentRelativeAltitude(4)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	clock.Advance(5 * time.Second)
	require.Equal(t, NotDetected, m.Update(false))

	m.SetCurrentRelativeAltitude(3.5)
	assert.Equal(t, Searching, step(m, clock, true))
	assert.Equal(t, 3.5, m.NotDetectedAltitude())

	// search timer restarted on the way back
	for i := 0; i < 99; i++ {
		require.Equal(t, Searching, step(m, clock, false))
	}
}

func TestNewMachine_RejectsZeroThreshold(t *testing.T) {
	_, err := NewMachine(Config{NoDetectionThreshold: 0, FirstAcquireDetections: 1, ReacquireDetections: 1}, nil)
	assert.Error(t, err)
}

func TestMachine_SnapshotAltitudeReplacesStaleValue(t *testing.T) {
	m, clock := newTestMachine(t)
	m.SetCurrentRelativeAltitude(0.6)
	for i := 0; i < 20; i++ {
		step(m, clock, false)
	}
	require.Equal(t, Searching, m.Mode())
	require.Equal(t, 0.6, m.NotDetectedAltitude())

	m.SetCurrentRelativeAltitude(5)
	m.SnapshotAltitude()
	assert.Equal(t, 5.0, m.NotDetectedAltitude())
	assert.Equal(t, Searching, m.Mode())
	_, ok := m.LastTransition()
	assert.False(t, ok, "no transition is recorded")
}
