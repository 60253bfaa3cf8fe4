// Package control holds the three-axis PID bank that turns smoothed image
// error into body-frame velocity, and the altitude-tiered schedule that
// decides how fast the vehicle may descend and how well centred it must be
// before it does.
//
// Descent is centring-gated: outside the tolerance of the current altitude
// band the bank only creeps downward while the horizontal loops work.
package control
