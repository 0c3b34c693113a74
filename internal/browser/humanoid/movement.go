// internal/browser/humanoid/movement.go
package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// MoveTo simulates human-like pointer movement to a target element.
func (h *Humanoid) MoveTo(ctx context.Context, selector string, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToSelector(ctx, selector, opts)
}

// MoveToVector simulates human-like pointer movement to a specific coordinate.
func (h *Humanoid) MoveToVector(ctx context.Context, target Vector2D, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToVector(ctx, target, opts)
}

// moveToSelector resolves the element's geometry, picks a natural aim point
// inside it, and moves there. Assumes the caller holds the lock.
func (h *Humanoid) moveToSelector(ctx context.Context, selector string, opts *InteractionOptions) error {
	if err := h.ensureVisible(ctx, selector, opts); err != nil {
		return err
	}

	geo, err := h.elementGeometry(ctx, selector)
	if err != nil {
		return fmt.Errorf("humanoid: failed to locate target '%s': %w", selector, err)
	}

	center, ok := quadCenter(geo)
	if !ok {
		return fmt.Errorf("humanoid: element '%s' has invalid geometry", selector)
	}

	target := h.calculateTargetPoint(geo, center)
	return h.moveToVector(ctx, target, opts)
}

// moveToVector performs the actual trajectory playback. Long movements are
// split into a ballistic main phase that lands near the target and a short
// corrective phase, matching how people overshoot and settle. Assumes the
// caller holds the lock.
func (h *Humanoid) moveToVector(ctx context.Context, target Vector2D, opts *InteractionOptions) error {
	start := h.currentPos
	dist := start.Dist(target)
	if dist < 1.0 {
		return nil
	}

	h.updateFatigue(dist / 1000.0)

	var field *PotentialField
	if opts != nil {
		field = opts.Field
	}

	if dist > h.dynamicConfig.MicroCorrectionThreshold {
		// Ballistic phase: aim past or short of the target by a few percent.
		miss := dist * (0.03 + h.rng.Float64()*0.05)
		if h.rng.Float64() < 0.5 {
			miss = -miss
		}
		dir := target.Sub(start).Normalize()
		wayPoint := target.Add(dir.Mul(miss))

		if err := h.playPath(ctx, start, wayPoint, field); err != nil {
			return err
		}
		if err := h.cognitivePause(ctx, 60, 25); err != nil {
			return err
		}
		start = h.currentPos
	}

	return h.playPath(ctx, h.currentPos, target, field)
}

// playPath builds a fresh curved, jittered path and traces it.
// Assumes the caller holds the lock.
func (h *Humanoid) playPath(ctx context.Context, start, end Vector2D, field *PotentialField) error {
	spec := PathSpec{
		MinPoints: h.dynamicConfig.PathPointsMin,
		MaxPoints: h.dynamicConfig.PathPointsMax,
		Duration:  h.fittsDuration(start.Dist(end)),
		Field:     field,
	}
	path := CurvedPath(h.rng, start, end, spec)
	path = Jitter(h.rng, path, h.dynamicConfig.JitterAmplitude)

	_, err := h.tracePath(ctx, path, h.currentButtonState)
	return err
}

// calculateTargetPoint determines a realistic aim point within an element's
// geometry. People do not click dead center, but they also avoid the edges.
// Assumes the caller holds the lock.
func (h *Humanoid) calculateTargetPoint(geo *schemas.ElementGeometry, center Vector2D) Vector2D {
	if geo == nil || geo.Width == 0 || geo.Height == 0 {
		return center
	}

	width, height := float64(geo.Width), float64(geo.Height)

	// A normal distribution over the inner 90% of the element.
	stdDevX := width * 0.9 / 6.0
	stdDevY := height * 0.9 / 6.0
	offsetX := h.rng.NormFloat64() * stdDevX
	offsetY := h.rng.NormFloat64() * stdDevY

	finalX := center.X + offsetX
	finalY := center.Y + offsetY

	// Clamp to stay inside the element bounds.
	minX, maxX := center.X-width/2.0+1.0, center.X+width/2.0-1.0
	minY, maxY := center.Y-height/2.0+1.0, center.Y+height/2.0-1.0
	if finalX < minX {
		finalX = minX
	}
	if finalX > maxX {
		finalX = maxX
	}
	if finalY < minY {
		finalY = minY
	}
	if finalY > maxY {
		finalY = maxY
	}

	return Vector2D{X: finalX, Y: finalY}
}
