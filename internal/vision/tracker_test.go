package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/geometry"
	"github.com/banshee-data/precision.land/internal/timeutil"
)

func centred(width, height int, side float64) geometry.Quad {
	cx, cy := float64(width)/2, float64(height)/2
	h := side / 2
	return geometry.Quad{{cx - h, cy - h}, {cx + h, cy - h}, {cx + h, cy + h}, {cx - h, cy + h}}
}

func newTestTracker(t *testing.T) (*Tracker, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	tr, err := NewTrackerFromTuning(config.EmptyTuningConfig(), clock)
	require.NoError(t, err)
	return tr, clock
}

func TestNewSample_Errors(t *testing.T) {
	q := geometry.Quad{{380, 120}, {420, 120}, {420, 160}, {380, 160}}
	s := NewSample(q, 640, 480, time.Time{})

	assert.True(t, s.Found)
	assert.Equal(t, 400.0, s.PixelX)
	assert.Equal(t, 140.0, s.PixelY)
	assert.Equal(t, 80.0, s.RawErrorX)
	assert.Equal(t, -100.0, s.RawErrorY)
	assert.InDelta(t, 0.125, s.NormErrorX, 1e-12)
	assert.InDelta(t, -100.0/480, s.NormErrorY, 1e-12)
	assert.Equal(t, 1600.0, s.TagArea)
}

func TestTracker_CentredMarker(t *testing.T) {
	tr, clock := newTestTracker(t)
	s := tr.Process(Frame{Candidates: []geometry.Quad{centred(640, 480, 60)}, Width: 640, Height: 480})

	require.True(t, s.Found)
	assert.Zero(t, s.NormErrorX)
	assert.Zero(t, s.NormErrorY)
	assert.Equal(t, clock.Now(), s.Timestamp, "missing frame timestamp uses the clock")
}

func TestTracker_RejectedCandidatesAreNotFound(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Process(Frame{Candidates: []geometry.Quad{centred(640, 480, 60)}, Width: 640, Height: 480})

	edge := geometry.Quad{{0, 10}, {40, 10}, {40, 50}, {0, 50}}
	s := tr.Process(Frame{Candidates: []geometry.Quad{edge}, Width: 640, Height: 480})
	assert.False(t, s.Found, "grace only covers frames without candidates")
}

func TestTracker_GraceWindow(t *testing.T) {
	tr, clock := newTestTracker(t)
	first := tr.Process(Frame{Candidates: []geometry.Quad{centred(640, 480, 60)}, Width: 640, Height: 480})

	clock.Advance(2900 * time.Millisecond)
	held := tr.Process(Frame{Width: 640, Height: 480})
	assert.Equal(t, first, held)

	clock.Advance(100 * time.Millisecond)
	gone := tr.Process(Frame{Width: 640, Height: 480})
	assert.False(t, gone.Found)
}

func TestTracker_NothingYet(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.False(t, tr.Process(Frame{Width: 640, Height: 480}).Found)
}

func TestNewTracker_RejectsBadGeometry(t *testing.T) {
	_, err := NewTracker(geometry.Config{MaxEdgeRatio: 0}, time.Second, nil)
	assert.Error(t, err)
}
