// internal/browser/humanoid/vector.go
package humanoid

import "math"

// Vector2D is a point or displacement on the page plane, in CSS pixels.
// Positions, velocities and steering forces all share this one type.
type Vector2D struct {
	X float64
	Y float64
}

// Add returns the component-wise sum v + w.
func (v Vector2D) Add(w Vector2D) Vector2D {
	return Vector2D{X: v.X + w.X, Y: v.Y + w.Y}
}

// Sub returns the component-wise difference v - w.
func (v Vector2D) Sub(w Vector2D) Vector2D {
	return Vector2D{X: v.X - w.X, Y: v.Y - w.Y}
}

// Mul scales both components by s.
func (v Vector2D) Mul(s float64) Vector2D {
	return Vector2D{X: v.X * s, Y: v.Y * s}
}

// Mag returns the Euclidean length of v. Hypot keeps the result finite
// even when the squared components would overflow.
func (v Vector2D) Mag() float64 {
	return math.Hypot(v.X, v.Y)
}

// MagSq returns the squared length, which is enough for ordering
// distances without paying for a square root.
func (v Vector2D) MagSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Dist returns the Euclidean distance between the points v and w.
func (v Vector2D) Dist(w Vector2D) float64 {
	return v.Sub(w).Mag()
}

// Normalize returns the unit vector pointing the same way as v. Vectors
// shorter than 1e-9 have no usable direction and collapse to zero.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1 / m)
}

// Limit rescales v so its length never exceeds ceil. Shorter vectors
// pass through untouched.
func (v Vector2D) Limit(ceil float64) Vector2D {
	m := v.Mag()
	if m <= ceil || m == 0 {
		return v
	}
	return v.Mul(ceil / m)
}
