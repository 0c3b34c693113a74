// internal/browser/humanoid/attention.go
package humanoid

import (
	"context"
	"math/rand"
	"time"
)

// ReadingActionKind tags one entry of a reading plan.
type ReadingActionKind int

const (
	ReadScrollDown ReadingActionKind = iota
	ReadPause
	ReadScrollUp
	ReadIdleJitter
)

func (k ReadingActionKind) String() string {
	switch k {
	case ReadScrollDown:
		return "scrollDown"
	case ReadPause:
		return "pause"
	case ReadScrollUp:
		return "scrollUp"
	case ReadIdleJitter:
		return "idleJitter"
	default:
		return "unknown"
	}
}

// ReadingAction is one abstract step of simulated content consumption.
type ReadingAction struct {
	Kind ReadingActionKind
	// Amount is the scroll distance in pixels for the scroll kinds.
	Amount float64
	// Duration is the dwell time for pause and idle kinds, and the estimated
	// playback time for scroll kinds.
	Duration time.Duration
}

// ReadingPlan generates a finite, non-repeating sequence of reading actions
// whose total estimated duration falls within the configured envelope. Each
// call produces a fresh plan; a plan is played once and discarded.
func ReadingPlan(rng *rand.Rand, cfg Config, viewportHeight float64) []ReadingAction {
	if viewportHeight <= 0 {
		viewportHeight = 800
	}

	minTotal := time.Duration(cfg.ReadingMinMs) * time.Millisecond
	maxTotal := time.Duration(cfg.ReadingMaxMs) * time.Millisecond
	if maxTotal < minTotal {
		maxTotal = minTotal
	}
	budget := minTotal + time.Duration(rng.Int63n(int64(maxTotal-minTotal)+1))

	var plan []ReadingAction
	var total time.Duration

	// Average inertial gesture time, used to estimate scroll playback.
	stepMs := (cfg.ScrollDelayFloorMs + cfg.ScrollDelayCeilingMs) / 2
	avgSteps := float64(cfg.ScrollStepsMin+cfg.ScrollStepsMax) / 2
	scrollEstimate := time.Duration(stepMs*avgSteps) * time.Millisecond

	for total < budget {
		var action ReadingAction

		roll := rng.Float64()
		switch {
		case roll < 0.40:
			action = ReadingAction{
				Kind:     ReadScrollDown,
				Amount:   viewportHeight * (0.3 + rng.Float64()*0.5),
				Duration: scrollEstimate,
			}
		case roll < 0.70:
			action = ReadingAction{
				Kind:     ReadPause,
				Duration: time.Duration(500+rng.Intn(1400)) * time.Millisecond,
			}
		case roll < 0.90:
			action = ReadingAction{
				Kind:     ReadIdleJitter,
				Duration: time.Duration(300+rng.Intn(700)) * time.Millisecond,
			}
		default:
			action = ReadingAction{
				Kind:     ReadScrollUp,
				Amount:   viewportHeight * (0.1 + rng.Float64()*0.15),
				Duration: scrollEstimate,
			}
		}

		if total+action.Duration > maxTotal {
			break
		}
		plan = append(plan, action)
		total += action.Duration
	}

	// Top up with a single pause if the random walk stopped short.
	if total < minTotal {
		plan = append(plan, ReadingAction{Kind: ReadPause, Duration: minTotal - total})
	}

	return plan
}

// SimulateReading plays a reading plan against the live page: scrolling,
// pausing and idling the way a person skims a listing before acting on it.
func (h *Humanoid) SimulateReading(ctx context.Context, viewportHeight float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	plan := ReadingPlan(h.rng, h.dynamicConfig, viewportHeight)
	for _, action := range plan {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch action.Kind {
		case ReadScrollDown:
			if err := h.smoothScrollBy(ctx, action.Amount); err != nil {
				return err
			}
		case ReadScrollUp:
			if err := h.smoothScrollBy(ctx, -action.Amount); err != nil {
				return err
			}
		case ReadPause:
			if err := h.executor.Sleep(ctx, action.Duration); err != nil {
				return err
			}
			h.recoverFatigue(action.Duration)
		case ReadIdleJitter:
			if err := h.hesitate(ctx, action.Duration); err != nil {
				return err
			}
		}
	}
	return nil
}
