package control

import (
	"fmt"
	"math"
	"time"

	"go.einride.tech/pid"
)

// Gains are the proportional, integral and derivative coefficients of one axis.
type Gains struct {
	Kp, Ki, Kd float64
}

// Axis is a single PID loop with a symmetric integral bound.
type Axis struct {
	gains Gains
	limit float64
	ctl   pid.Controller
}

// NewAxis returns an Axis whose accumulated integral stays within ±limit.
func NewAxis(g Gains, limit float64) (*Axis, error) {
	if limit <= 0 || math.IsNaN(limit) {
		return nil, fmt.Errorf("integral limit must be positive, got %f", limit)
	}
	a := &Axis{gains: g, limit: limit}
	a.Reset()
	return a, nil
}

// Update feeds error e observed dt after the previous call and returns the
// control signal. With dt <= 0 only the proportional and existing integral
// terms contribute.
func (a *Axis) Update(e float64, dt time.Duration) float64 {
	st := &a.ctl.State
	if dt <= 0 {
		st.ControlError = e
		st.ControlSignal = a.gains.Kp*e + a.gains.Ki*st.ControlErrorIntegral
		return st.ControlSignal
	}

	a.ctl.Update(pid.ControllerInput{
		ReferenceSignal:  e,
		ActualSignal:     0,
		SamplingInterval: dt,
	})
	st.ControlErrorIntegral = clamp(st.ControlErrorIntegral, -a.limit, a.limit)
	st.ControlSignal = a.gains.Kp*st.ControlError +
		a.gains.Ki*st.ControlErrorIntegral +
		a.gains.Kd*st.ControlErrorDerivative
	return st.ControlSignal
}

// Integral returns the current accumulated integral.
func (a *Axis) Integral() float64 { return a.ctl.State.ControlErrorIntegral }

// Reset zeroes the integral and the remembered error.
func (a *Axis) Reset() {
	a.ctl = pid.Controller{
		Config: pid.ControllerConfig{
			ProportionalGain: a.gains.Kp,
			IntegralGain:     a.gains.Ki,
			DerivativeGain:   a.gains.Kd,
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
