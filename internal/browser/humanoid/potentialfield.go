// internal/browser/humanoid/potentialfield.go
package humanoid

import "math"

// forceSource is one point of influence in a field. Positive strength
// attracts the pointer, negative strength repels it.
type forceSource struct {
	pos      Vector2D
	strength float64
	falloff  float64
}

// pull returns the force this source exerts on a pointer at the given
// position. Influence decays exponentially with distance at the rate set
// by falloff; a pointer sitting on the source feels nothing.
func (s forceSource) pull(at Vector2D) Vector2D {
	toward := s.pos.Sub(at)
	d := toward.Mag()
	if d < 1e-9 {
		return Vector2D{}
	}
	return toward.Mul(s.strength * math.Exp(-d/s.falloff) / d)
}

// PotentialField deforms pointer trajectories with point forces, bending a
// path toward a drop target or around an obstacle the way a guided hand
// would drift.
type PotentialField struct {
	sources []forceSource
}

// NewPotentialField creates a field with no sources.
func NewPotentialField() *PotentialField {
	return &PotentialField{}
}

// AddSource places an attractor (positive strength) or repulsor (negative
// strength) at pos. Falloff sets the reach of its influence.
func (pf *PotentialField) AddSource(pos Vector2D, strength, falloff float64) {
	pf.sources = append(pf.sources, forceSource{pos: pos, strength: strength, falloff: falloff})
}

// NetForce sums the pull of every source on the given position.
func (pf *PotentialField) NetForce(at Vector2D) Vector2D {
	var total Vector2D
	for _, s := range pf.sources {
		total = total.Add(s.pull(at))
	}
	return total
}
