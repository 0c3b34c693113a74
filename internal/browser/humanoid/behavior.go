package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// CognitivePause simulates a thinking pause. Longer pauses include subtle
// idle cursor drift instead of a dead stop.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cognitivePause(ctx, meanMs, stdDevMs)
}

// cognitivePause is the non-locking variant. Assumes the caller holds the lock.
func (h *Humanoid) cognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	fatigueFactor := 1.0 + h.fatigueLevel
	duration := time.Duration(fatigueFactor*(meanMs+h.rng.NormFloat64()*stdDevMs)) * time.Millisecond
	if duration <= 0 {
		return nil
	}
	h.recoverFatigue(duration)

	if duration > 100*time.Millisecond {
		return h.hesitate(ctx, duration)
	}
	return h.executor.Sleep(ctx, duration)
}

// Hesitate keeps the cursor alive with small drifting movements for the given
// duration.
func (h *Humanoid) Hesitate(ctx context.Context, duration time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hesitate(ctx, duration)
}

// hesitate drives the idle drift with pink noise, whose long-term
// correlations resemble resting hand motion far better than uniform jumps.
// Assumes the caller holds the lock.
func (h *Humanoid) hesitate(ctx context.Context, duration time.Duration) error {
	anchor := h.currentPos
	currentButtons := h.calculateButtonsBitfield(h.currentButtonState)

	var elapsed time.Duration
	for elapsed < duration {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		drift := Vector2D{
			X: h.driftX.Next() * 4.0,
			Y: h.driftY.Next() * 4.0,
		}
		targetPos := anchor.Add(drift)

		eventData := schemas.MouseEventData{
			Type:    schemas.MouseMove,
			X:       targetPos.X,
			Y:       targetPos.Y,
			Button:  schemas.ButtonNone,
			Buttons: currentButtons,
		}
		if err := h.executor.DispatchMouseEvent(ctx, eventData); err != nil {
			return err
		}
		h.currentPos = targetPos

		step := time.Duration(50+h.rng.Intn(100)) * time.Millisecond
		if elapsed+step > duration {
			step = duration - elapsed
		}
		if step <= 0 {
			break
		}
		if err := h.executor.Sleep(ctx, step); err != nil {
			return err
		}
		elapsed += step
	}
	return nil
}

// applyGaussianNoise adds high-frequency tremor to a pointer coordinate.
// Assumes the caller holds the lock.
func (h *Humanoid) applyGaussianNoise(point Vector2D) Vector2D {
	strength := h.dynamicConfig.GaussianStrength * (0.5 + h.rng.Float64())
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*strength,
		Y: point.Y + h.rng.NormFloat64()*strength,
	}
}

// applyFatigueEffects adjusts the dynamic configuration from the current
// fatigue level. Assumes the caller holds the lock.
func (h *Humanoid) applyFatigueEffects() {
	fatigueFactor := 1.0 + h.fatigueLevel

	h.dynamicConfig.GaussianStrength = h.baseConfig.GaussianStrength * fatigueFactor
	h.dynamicConfig.PerlinAmplitude = h.baseConfig.PerlinAmplitude * fatigueFactor
	h.dynamicConfig.FittsA = h.baseConfig.FittsA * fatigueFactor

	h.dynamicConfig.TypoRate = h.baseConfig.TypoRate * (1.0 + h.fatigueLevel*2.0)
	h.dynamicConfig.TypoRate = math.Min(0.25, h.dynamicConfig.TypoRate)
}

// updateFatigue raises the fatigue level in proportion to action intensity.
// Assumes the caller holds the lock.
func (h *Humanoid) updateFatigue(intensity float64) {
	h.fatigueLevel += h.baseConfig.FatigueIncreaseRate * intensity
	h.fatigueLevel = math.Min(1.0, h.fatigueLevel)
	h.applyFatigueEffects()
}

// recoverFatigue lowers the fatigue level during pauses.
// Assumes the caller holds the lock.
func (h *Humanoid) recoverFatigue(duration time.Duration) {
	h.fatigueLevel -= h.baseConfig.FatigueRecoveryRate * duration.Seconds()
	h.fatigueLevel = math.Max(0.0, h.fatigueLevel)
	h.applyFatigueEffects()
}

// calculateButtonsBitfield converts the internal button state into the
// standard bitfield representation.
func (h *Humanoid) calculateButtonsBitfield(buttonState schemas.MouseButton) int64 {
	var buttons int64
	switch buttonState {
	case schemas.ButtonLeft:
		buttons = 1
	case schemas.ButtonRight:
		buttons = 2
	case schemas.ButtonMiddle:
		buttons = 4
	}
	return buttons
}
