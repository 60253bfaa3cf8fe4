// Package geometry validates fiducial-marker corner sets and chooses the
// authoritative candidate when a frame contains more than one.
//
// A candidate is rejected when any corner touches or leaves the image, when
// an edge collapses, when its sides are too unequal, or when it covers too
// few pixels. Survivors are ranked by a configurable selection policy.
package geometry
