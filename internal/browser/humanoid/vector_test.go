package humanoid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorArithmetic(t *testing.T) {
	a := Vector2D{X: 3, Y: 4}
	b := Vector2D{X: -1, Y: 2}

	assert.Equal(t, Vector2D{X: 2, Y: 6}, a.Add(b))
	assert.Equal(t, Vector2D{X: 4, Y: 2}, a.Sub(b))
	assert.Equal(t, Vector2D{X: 6, Y: 8}, a.Mul(2))
}

func TestVectorMagnitude(t *testing.T) {
	v := Vector2D{X: 3, Y: 4}
	assert.Equal(t, 25.0, v.MagSq())
	assert.Equal(t, 5.0, v.Mag())
	assert.Equal(t, 5.0, Vector2D{}.Dist(v))
}

func TestVectorNormalize(t *testing.T) {
	v := Vector2D{X: 10, Y: 0}.Normalize()
	assert.Equal(t, Vector2D{X: 1, Y: 0}, v)

	n := Vector2D{X: 3, Y: -4}.Normalize()
	assert.InDelta(t, 1.0, n.Mag(), 1e-12)

	assert.Equal(t, Vector2D{}, Vector2D{}.Normalize(), "the zero vector has no direction")
	assert.Equal(t, Vector2D{}, Vector2D{X: 1e-12, Y: 1e-12}.Normalize())
}

func TestVectorLimit(t *testing.T) {
	v := Vector2D{X: 30, Y: 40}

	capped := v.Limit(5)
	assert.InDelta(t, 5.0, capped.Mag(), 1e-12)
	assert.InDelta(t, v.Y/v.X, capped.Y/capped.X, 1e-12, "direction survives the cap")

	assert.Equal(t, v, v.Limit(100), "vectors under the cap pass through unchanged")
	assert.Equal(t, Vector2D{}, Vector2D{}.Limit(5))
}

func TestVectorMagnitudeOverflowSafety(t *testing.T) {
	// Hypot avoids intermediate overflow where sqrt(x*x+y*y) would not.
	v := Vector2D{X: 1e200, Y: 1e200}
	assert.False(t, math.IsInf(v.Mag(), 1))
}
