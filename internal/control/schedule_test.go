package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/config"
)

func defaultSchedule(t *testing.T) *Schedule {
	t.Helper()
	cfg := config.EmptyTuningConfig()
	s, err := NewSchedule(cfg.GetBandHeight(), cfg.GetAltitudeBands())
	require.NoError(t, err)
	return s
}

func TestSchedule_Bands(t *testing.T) {
	s := defaultSchedule(t)

	tests := []struct {
		alt  float64
		band int
	}{
		{-1, 0}, {0, 0}, {0.4, 0}, {0.5, 1}, {0.99, 1},
		{1.2, 2}, {2.0, 4}, {2.9, 5}, {3.0, 6}, {12, 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.band, s.Lookup(tt.alt).Band, "altitude %v", tt.alt)
	}
	assert.Equal(t, 0.05, s.Lookup(0.4).DescentSpeed)
}

func TestSchedule_MonotonicInAltitude(t *testing.T) {
	s := defaultSchedule(t)
	prev := s.Lookup(0)
	for alt := 0.0; alt <= 6.0; alt += 0.01 {
		cur := s.Lookup(alt)
		if cur.Band < prev.Band || cur.Tolerance < prev.Tolerance || cur.DescentSpeed < prev.DescentSpeed {
			t.Fatalf("schedule decreases at %.2f m: %+v after %+v", alt, cur, prev)
		}
		prev = cur
	}
}

func TestNewSchedule_Rejects(t *testing.T) {
	_, err := NewSchedule(0, []config.AltitudeBand{{0.1, 0.1}})
	assert.Error(t, err)
	_, err = NewSchedule(0.5, nil)
	assert.Error(t, err)
	_, err = NewSchedule(0.5, []config.AltitudeBand{{0.2, 0.1}, {0.1, 0.2}})
	assert.Error(t, err)
}
