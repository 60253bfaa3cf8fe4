package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxis_ProportionalOnFirstTick(t *testing.T) {
	a, err := NewAxis(Gains{Kp: 0.5, Ki: 0.1, Kd: 0.01}, 1.0)
	require.NoError(t, err)

	// dt == 0: no derivative, no integral accumulation
	assert.InDelta(t, 0.05, a.Update(0.1, 0), 1e-12)
	assert.Zero(t, a.Integral())
}

func TestAxis_IntegralAndDerivative(t *testing.T) {
	a, _ := NewAxis(Gains{Kp: 1, Ki: 1, Kd: 1}, 10)
	dt := 100 * time.Millisecond

	a.Update(0.2, 0)
	out := a.Update(0.4, dt)
	// p = 0.4, i = 0.04, d = (0.4-0.2)/0.1
	assert.InDelta(t, 0.4+0.04+2.0, out, 1e-9)
	assert.InDelta(t, 0.04, a.Integral(), 1e-12)
}

func TestAxis_IntegralNeverExceedsBound(t *testing.T) {
	for _, e := range []float64{1e6, -1e6, 0.5, -3} {
		a, _ := NewAxis(Gains{Kp: 0.5, Ki: 0.1, Kd: 0.01}, 1.0)
		for i := 0; i < 10000; i++ {
			a.Update(e, 50*time.Millisecond)
			if got := a.Integral(); got > 1.0 || got < -1.0 {
				t.Fatalf("error %v step %d: integral %v outside ±1", e, i, got)
			}
		}
	}
}

func TestAxis_Reset(t *testing.T) {
	a, _ := NewAxis(Gains{Kp: 0, Ki: 1, Kd: 1}, 5)
	a.Update(1, time.Second)
	a.Update(1, time.Second)
	require.NotZero(t, a.Integral())

	a.Reset()
	assert.Zero(t, a.Integral())
	// no stale derivative after reset on a zero-dt tick
	assert.Zero(t, a.Update(0.3, 0))
}

func TestNewAxis_RejectsLimit(t *testing.T) {
	_, err := NewAxis(Gains{}, 0)
	assert.Error(t, err)
}
