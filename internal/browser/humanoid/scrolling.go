// internal/browser/humanoid/scrolling.go
package humanoid

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"math/rand"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"go.uber.org/zap"
)

// The JavaScript half of the scroll loop: optionally applies a raw scrollBy,
// then measures where the target sits relative to the viewport.
//
//go:embed scrolling.js
var scrollProbeJS string

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ScrollStep is one increment of an inertial scroll gesture.
type ScrollStep struct {
	Delta float64
	Delay time.Duration
}

// ScrollInertia decomposes a scroll distance into discrete steps modeling
// momentum decay: large fast increments first, then progressively smaller and
// slower ones. Delays rise monotonically from a fast floor to a slow ceiling,
// and the step deltas sum exactly to the requested distance so repeated
// gestures never accumulate drift.
func ScrollInertia(rng *rand.Rand, distance float64, cfg Config) []ScrollStep {
	minSteps := cfg.ScrollStepsMin
	if minSteps < 1 {
		minSteps = 1
	}
	maxSteps := cfg.ScrollStepsMax
	if maxSteps < minSteps {
		maxSteps = minSteps
	}
	n := minSteps + rng.Intn(maxSteps-minSteps+1)

	// Ease-out magnitude profile with mild per-step noise.
	const decay = 0.72
	weights := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		weights[i] = math.Pow(decay, float64(i)) * (0.85 + 0.3*rng.Float64())
		sum += weights[i]
	}

	steps := make([]ScrollStep, n)
	assigned := 0.0
	for i := 0; i < n-1; i++ {
		d := distance * weights[i] / sum
		steps[i].Delta = d
		assigned += d
	}
	// The final step carries the remainder, keeping the total exact.
	steps[n-1].Delta = distance - assigned

	floor := cfg.ScrollDelayFloorMs
	ceiling := cfg.ScrollDelayCeilingMs
	if ceiling < floor {
		ceiling = floor
	}
	prev := 0.0
	for i := 0; i < n; i++ {
		frac := 0.0
		if n > 1 {
			frac = float64(i) / float64(n-1)
		}
		ms := floor + (ceiling-floor)*math.Pow(frac, 1.6)
		ms += rng.Float64() * 6.0
		if ms < prev {
			ms = prev
		}
		prev = ms
		steps[i].Delay = time.Duration(ms * float64(time.Millisecond))
	}

	return steps
}

// scrollProbe is the measurement returned by scrolling.js.
type scrollProbe struct {
	ElementExists  bool    `json:"elementExists"`
	IsIntersecting bool    `json:"isIntersecting"`
	RemainingY     float64 `json:"remainingY"`
	ContentDensity float64 `json:"contentDensity"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// ScrollBy performs a smooth inertial scroll of the main viewport.
func (h *Humanoid) ScrollBy(ctx context.Context, deltaY float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.smoothScrollBy(ctx, deltaY)
}

// ScrollIntoView scrolls in human-paced increments until the selector is
// comfortably inside the viewport.
func (h *Humanoid) ScrollIntoView(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.intelligentScroll(ctx, selector)
}

// smoothScrollBy plays one inertial gesture. The delivery channel is chosen
// per gesture: wheel events at the cursor position, or plain scrollBy calls
// standing in for trackpad and scrollbar use. Assumes the caller holds the lock.
func (h *Humanoid) smoothScrollBy(ctx context.Context, deltaY float64) error {
	if math.Abs(deltaY) < 1.0 {
		return nil
	}

	steps := ScrollInertia(h.rng, deltaY, h.dynamicConfig)
	useWheel := h.rng.Float64() < h.dynamicConfig.ScrollMouseWheelProbability

	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if useWheel {
			ev := schemas.MouseEventData{
				Type:   schemas.MouseWheel,
				X:      h.currentPos.X,
				Y:      h.currentPos.Y,
				Button: schemas.ButtonNone,
				DeltaY: step.Delta,
			}
			if err := h.executor.DispatchMouseEvent(ctx, ev); err != nil {
				return err
			}
		} else {
			if _, err := h.runScrollProbe(ctx, "", step.Delta); err != nil {
				return err
			}
		}
		if err := h.executor.Sleep(ctx, step.Delay); err != nil {
			return err
		}
	}
	return nil
}

// intelligentScroll approaches the target in viewport-sized hops with reading
// pauses between them, plus occasional overshoot and regression so the
// approach is not a straight mechanical descent. Assumes the caller holds the
// lock.
func (h *Humanoid) intelligentScroll(ctx context.Context, selector string) error {
	if err := h.cognitivePause(ctx, 150, 60); err != nil {
		return err
	}

	shouldOvershoot := h.rng.Float64() < h.dynamicConfig.ScrollOvershootProbability
	shouldRegress := h.rng.Float64() < h.dynamicConfig.ScrollRegressionProbability

	const maxIterations = 12
	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		probe, err := h.runScrollProbe(ctx, selector, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Warn("scroll probe failed", zap.Error(err), zap.Int("iteration", iteration))
			if err := h.executor.Sleep(ctx, 100*time.Millisecond); err != nil {
				return err
			}
			continue
		}

		// The caller re-checks element geometry afterwards and reports a
		// missing element with better context than the scroller could.
		if !probe.ElementExists {
			return nil
		}

		if probe.IsIntersecting {
			if shouldOvershoot && iteration > 0 {
				overshoot := 40 + h.rng.Float64()*80
				if probe.RemainingY < 0 {
					overshoot = -overshoot
				}
				if err := h.smoothScrollBy(ctx, overshoot); err != nil {
					return err
				}
				if err := h.cognitivePause(ctx, 180, 70); err != nil {
					return err
				}
				if err := h.smoothScrollBy(ctx, -overshoot); err != nil {
					return err
				}
			}
			return nil
		}

		// Cover a large fraction of the remaining distance, capped to a bit
		// under one viewport per hop.
		delta := probe.RemainingY * (0.6 + h.rng.Float64()*0.3)
		if probe.ViewportHeight > 0 {
			delta = clampMagnitude(delta, probe.ViewportHeight*0.9)
		}
		if err := h.smoothScrollBy(ctx, delta); err != nil {
			return err
		}

		pause := h.scrollReadingPause(probe.ContentDensity)
		pauseMs := float64(pause.Milliseconds())
		if err := h.cognitivePause(ctx, pauseMs, pauseMs*0.3); err != nil {
			return err
		}

		if shouldRegress && iteration >= 2 {
			back := -delta * (0.2 + h.rng.Float64()*0.3)
			if err := h.smoothScrollBy(ctx, back); err != nil {
				return err
			}
			shouldRegress = false
			// Extra pause while re-reading the passage scrolled back to.
			if err := h.cognitivePause(ctx, 350, 150); err != nil {
				return err
			}
		}
	}

	h.logger.Warn("scroll target still out of view after max iterations", zap.String("selector", selector))
	return nil
}

// runScrollProbe executes scrolling.js with the given arguments.
// Assumes the caller holds the lock.
func (h *Humanoid) runScrollProbe(ctx context.Context, selector string, deltaY float64) (*scrollProbe, error) {
	args := []interface{}{selector, math.Round(deltaY)}

	resultJSON, err := h.executor.ExecuteScript(ctx, scrollProbeJS, args)
	if err != nil {
		return nil, fmt.Errorf("scroll probe execution: %w", err)
	}
	if len(resultJSON) == 0 || string(resultJSON) == "null" || string(resultJSON) == "undefined" {
		return nil, fmt.Errorf("scroll probe returned an empty result")
	}

	var probe scrollProbe
	if err := jsonAPI.Unmarshal(resultJSON, &probe); err != nil {
		h.logger.Error("failed to unmarshal scroll probe result", zap.Error(err), zap.String("json", string(resultJSON)))
		return nil, fmt.Errorf("unmarshal scroll probe result: %w", err)
	}
	return &probe, nil
}

// scrollReadingPause scales the between-hop pause by how text-dense the
// current viewport is. Assumes the caller holds the lock.
func (h *Humanoid) scrollReadingPause(contentDensity float64) time.Duration {
	pauseMs := 100 + contentDensity*1000*h.dynamicConfig.ScrollReadDensityFactor
	pauseMs *= 1.0 + h.fatigueLevel*0.5
	if pauseMs > 2000 {
		pauseMs = 2000
	}
	if pauseMs < 50 {
		pauseMs = 50
	}
	return time.Duration(pauseMs) * time.Millisecond
}
