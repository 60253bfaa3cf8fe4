package geometry

import "math"

// Point is a pixel coordinate.
type Point struct {
	X, Y float64
}

// Quad is a marker candidate: four corners in detector order.
type Quad [4]Point

// Edges returns the four side lengths, corner i to corner i+1.
func (q Quad) Edges() [4]float64 {
	var e [4]float64
	for i := 0; i < 4; i++ {
		a, b := q[i], q[(i+1)%4]
		e[i] = math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return e
}

// Area is the shoelace area in px². Winding order does not matter.
func (q Quad) Area() float64 {
	var s float64
	for i := 0; i < 4; i++ {
		a, b := q[i], q[(i+1)%4]
		s += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(s) / 2
}

// Centre is the mean of the four corners.
func (q Quad) Centre() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	return Point{X: c.X / 4, Y: c.Y / 4}
}
