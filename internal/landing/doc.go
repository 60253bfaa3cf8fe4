// Package landing sequences a landing attempt:
//
//	IDLE → WAITING → {ADJUST_POSITION | CIRCLE} → LANDING → IDLE
//
// with CIRCLE and ADJUST_POSITION alternating while the vehicle is above the
// landing floor. The Procedure emits one abstract flight.Command per Step and
// never talks to the vehicle itself.
package landing
