// Package filter smooths per-axis error signals with an exponential moving
// average.
package filter

import "fmt"

// Axis is the state of one exponentially smoothed signal.
// The zero value is unusable; build one with NewAxis.
type Axis struct {
	alpha       float64
	last        float64
	initialized bool
}

// NewAxis returns an Axis with smoothing factor alpha in (0, 1].
func NewAxis(alpha float64) (*Axis, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("filter alpha must be in (0, 1], got %f", alpha)
	}
	return &Axis{alpha: alpha}, nil
}

// Filter folds raw into the average and returns the smoothed value. The first
// call after construction or Reset returns raw unchanged.
func (a *Axis) Filter(raw float64) float64 {
	if !a.initialized {
		a.last = raw
		a.initialized = true
		return raw
	}
	a.last = a.alpha*raw + (1-a.alpha)*a.last
	return a.last
}

// Last returns the most recent output, and false if nothing has been filtered
// since the last reset.
func (a *Axis) Last() (float64, bool) {
	return a.last, a.initialized
}

// Reset forgets the history; the next Filter call seeds the average.
func (a *Axis) Reset() {
	a.initialized = false
	a.last = 0
}

// Conditioner smooths the horizontal image error pair and, optionally, the
// altitude error.
type Conditioner struct {
	X, Y, Altitude *Axis
}

// NewConditioner returns a Conditioner whose three axes share alpha.
func NewConditioner(alpha float64) (*Conditioner, error) {
	var axes [3]*Axis
	for i := range axes {
		a, err := NewAxis(alpha)
		if err != nil {
			return nil, err
		}
		axes[i] = a
	}
	return &Conditioner{X: axes[0], Y: axes[1], Altitude: axes[2]}, nil
}

// Errors filters a normalised image error pair.
func (c *Conditioner) Errors(dx, dy float64) (float64, float64) {
	return c.X.Filter(dx), c.Y.Filter(dy)
}

// Reset clears all three axes.
func (c *Conditioner) Reset() {
	c.X.Reset()
	c.Y.Reset()
	c.Altitude.Reset()
}
