package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxis_FirstCallSeeds(t *testing.T) {
	a, err := NewAxis(0.2)
	require.NoError(t, err)

	assert.Equal(t, 0.4, a.Filter(0.4), "first sample passes through")
	assert.InDelta(t, 0.2*0.0+0.8*0.4, a.Filter(0.0), 1e-12)
}

func TestAxis_ConvergesToConstant(t *testing.T) {
	a, _ := NewAxis(0.2)
	a.Filter(0)
	var out float64
	for i := 0; i < 200; i++ {
		out = a.Filter(0.3)
	}
	assert.InDelta(t, 0.3, out, 1e-9)
}

func TestAxis_Reset(t *testing.T) {
	a, _ := NewAxis(0.5)
	a.Filter(1)
	a.Filter(0)

	a.Reset()
	_, ok := a.Last()
	assert.False(t, ok)
	assert.Equal(t, -0.25, a.Filter(-0.25), "reset axis seeds again")
}

func TestNewAxis_RejectsAlpha(t *testing.T) {
	for _, alpha := range []float64{0, -0.1, 1.01} {
		_, err := NewAxis(alpha)
		assert.Error(t, err, "alpha %v", alpha)
	}
}

func TestConditioner_ResetsEveryAxis(t *testing.T) {
	c, err := NewConditioner(0.2)
	require.NoError(t, err)

	c.Errors(0.1, -0.1)
	c.Altitude.Filter(3)
	c.Reset()

	dx, dy := c.Errors(0.05, 0.02)
	assert.Equal(t, 0.05, dx)
	assert.Equal(t, 0.02, dy)
	_, ok := c.Altitude.Last()
	assert.False(t, ok)
}

func TestNewConditioner_ValidatesAlpha(t *testing.T) {
	for _, alpha := range []float64{0, -0.1, 1.5} {
		c, err := NewConditioner(alpha)
		assert.Error(t, err, "alpha %v", alpha)
		assert.Nil(t, c)
	}

	c, err := NewConditioner(1)
	require.NoError(t, err)
	assert.NotSame(t, c.X, c.Y)
	assert.NotSame(t, c.Y, c.Altitude)
}
