package humanoid

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"go.uber.org/zap"
)

// PathPoint is a single sample of a pointer trajectory.
type PathPoint struct {
	Pos     Vector2D
	TOffset time.Duration
}

// MotionPath is an ordered sequence of trajectory samples. A path is generated
// fresh per movement, immutable once produced, and discarded after playback.
type MotionPath []PathPoint

// Duration returns the time offset of the final sample.
func (p MotionPath) Duration() time.Duration {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].TOffset
}

// Bounds describes the rectangle paths are clamped into so perturbed control
// points cannot steer the cursor off screen.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (b Bounds) clamp(v Vector2D) Vector2D {
	return Vector2D{
		X: math.Max(b.MinX, math.Min(b.MaxX, v.X)),
		Y: math.Max(b.MinY, math.Min(b.MaxY, v.Y)),
	}
}

// PathSpec carries the shape parameters for a single path generation.
type PathSpec struct {
	MinPoints int
	MaxPoints int
	Duration  time.Duration
	Bounds    *Bounds
	Field     *PotentialField
}

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// CurvedPath builds a cubic Bezier trajectory from start to end. The two
// control points are perturbed off the straight line by an amount scaled to
// the movement distance and bounded so the curve stays plausible. Point count
// and inter-point timing are randomized per call, so repeated movements never
// replay the same path.
func CurvedPath(rng *rand.Rand, start, end Vector2D, spec PathSpec) MotionPath {
	minPts := spec.MinPoints
	if minPts < 2 {
		minPts = 2
	}
	maxPts := spec.MaxPoints
	if maxPts < minPts {
		maxPts = minPts
	}
	n := minPts + rng.Intn(maxPts-minPts+1)

	duration := spec.Duration
	if duration <= 0 {
		duration = 300 * time.Millisecond
	}

	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 {
		return MotionPath{
			{Pos: start, TOffset: 0},
			{Pos: end, TOffset: duration},
		}
	}

	dir := mainVec.Normalize()
	perp := Vector2D{X: -dir.Y, Y: dir.X}

	// Perturbation grows with distance but is capped so long moves do not
	// swing wildly off course.
	maxOffset := math.Min(dist*0.25, 120.0)
	offset1 := clampMagnitude(rng.NormFloat64()*dist*0.08, maxOffset)
	offset2 := clampMagnitude(rng.NormFloat64()*dist*0.08, maxOffset)

	p0, p3 := start, end
	p1 := start.Add(dir.Mul(dist / 3.0)).Add(perp.Mul(offset1))
	p2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(offset2))

	if spec.Field != nil {
		// Field pull obeys the same cap as the random perturbation, so a
		// strong source bends the curve without folding it.
		p1 = p1.Add(spec.Field.NetForce(p1).Mul(dist * 0.1).Limit(maxOffset))
		p2 = p2.Add(spec.Field.NetForce(p2).Mul(dist * 0.1).Limit(maxOffset))
	}
	if spec.Bounds != nil {
		p1 = spec.Bounds.clamp(p1)
		p2 = spec.Bounds.clamp(p2)
	}

	// Randomized eased intervals: each step's share of the total duration is
	// the easing delta warped by a bounded multiplicative noise term.
	weights := make([]float64, n-1)
	prev, sum := 0.0, 0.0
	for i := 1; i < n; i++ {
		f := computeEaseInOutCubic(float64(i) / float64(n-1))
		w := (f - prev) * (0.7 + 0.6*rng.Float64())
		if w < 1e-9 {
			w = 1e-9
		}
		weights[i-1] = w
		prev = f
		sum += w
	}

	path := make(MotionPath, n)
	path[0] = PathPoint{Pos: p0, TOffset: 0}
	acc := 0.0
	for i := 1; i < n; i++ {
		acc += weights[i-1] / sum
		t := float64(i) / float64(n-1)
		omt := 1.0 - t
		pos := p0.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(p3.Mul(t * t * t))
		path[i] = PathPoint{
			Pos:     pos,
			TOffset: time.Duration(float64(duration) * acc),
		}
	}

	// The endpoints are exact regardless of float accumulation.
	path[n-1] = PathPoint{Pos: end, TOffset: duration}

	return path
}

// Jitter returns a new path with a micro-tremor sample inserted at the
// temporal midpoint of every consecutive pair. The inserted samples carry
// small zero-mean positional noise; the original samples, including both
// endpoints, are preserved untouched.
func Jitter(rng *rand.Rand, path MotionPath, amplitude float64) MotionPath {
	if len(path) < 2 || amplitude <= 0 {
		out := make(MotionPath, len(path))
		copy(out, path)
		return out
	}

	out := make(MotionPath, 0, len(path)*2-1)
	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		out = append(out, a)
		mid := PathPoint{
			Pos: Vector2D{
				X: (a.Pos.X+b.Pos.X)/2 + rng.NormFloat64()*amplitude,
				Y: (a.Pos.Y+b.Pos.Y)/2 + rng.NormFloat64()*amplitude,
			},
			TOffset: a.TOffset + (b.TOffset-a.TOffset)/2,
		}
		out = append(out, mid)
	}
	out = append(out, path[len(path)-1])
	return out
}

func clampMagnitude(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// fittsDuration determines a realistic movement duration based on Fitts's law.
// Assumes the caller holds the lock.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	const W = 30.0 // assumed target width in pixels
	id := math.Log2(1.0 + distance/W)

	mt := h.dynamicConfig.FittsA + h.dynamicConfig.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15) // +/- 15%

	if mt < 30.0 {
		mt = 30.0
	}
	return time.Duration(mt) * time.Millisecond
}

// tracePath plays a MotionPath through the executor, dispatching a mouse move
// per sample with live Perlin drift and Gaussian tremor layered on top.
// Returns the velocity over the final segment. Assumes the caller holds the lock.
func (h *Humanoid) tracePath(ctx context.Context, path MotionPath, buttonState schemas.MouseButton) (Vector2D, error) {
	var velocity Vector2D
	if len(path) == 0 {
		return velocity, nil
	}

	buttonsBitfield := h.calculateButtonsBitfield(buttonState)
	perlinFrequency := 0.8
	var elapsed time.Duration

	for i, sample := range path {
		if ctx.Err() != nil {
			return velocity, ctx.Err()
		}

		if wait := sample.TOffset - elapsed; wait > 0 {
			if err := h.executor.Sleep(ctx, wait); err != nil {
				return velocity, err
			}
			elapsed = sample.TOffset
		}

		t := sample.TOffset.Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(t*perlinFrequency) * h.dynamicConfig.PerlinAmplitude,
			Y: h.noiseY.Noise1D(t*perlinFrequency) * h.dynamicConfig.PerlinAmplitude,
		}
		perturbed := h.applyGaussianNoise(sample.Pos.Add(drift))

		eventData := schemas.MouseEventData{
			Type:   schemas.MouseMove,
			X:      perturbed.X,
			Y:      perturbed.Y,
			Button: schemas.ButtonNone,
		}
		if buttonsBitfield > 0 {
			eventData.Buttons = buttonsBitfield
		}

		if err := h.executor.DispatchMouseEvent(ctx, eventData); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("failed to dispatch mouse move event", zap.Error(err))
			}
			return velocity, err
		}

		if i > 0 {
			dt := (sample.TOffset - path[i-1].TOffset).Seconds()
			if dt > 1e-6 {
				velocity = sample.Pos.Sub(path[i-1].Pos).Mul(1.0 / dt)
			}
		}
		h.currentPos = perturbed
	}

	return velocity, nil
}
