package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// IntelligentClick moves to the element like a person would and performs a
// full press-hold-release cycle on it.
func (h *Humanoid) IntelligentClick(ctx context.Context, selector string, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveToSelector(ctx, selector, opts); err != nil {
		return err
	}

	return h.pressAndRelease(ctx)
}

// ClickAt moves to an absolute coordinate and clicks there.
func (h *Humanoid) ClickAt(ctx context.Context, target Vector2D, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveToVector(ctx, target, opts); err != nil {
		return err
	}

	return h.pressAndRelease(ctx)
}

// pressAndRelease dispatches a press, holds the button for a bounded random
// duration, and releases. The release position drifts slightly from the press
// position, modeling hand tremor during the hold. Assumes the caller holds
// the lock.
func (h *Humanoid) pressAndRelease(ctx context.Context) error {
	pressPos := h.currentPos

	mouseDown := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pressPos.X,
		Y:          pressPos.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, mouseDown); err != nil {
		return err
	}
	h.currentButtonState = schemas.ButtonLeft

	if err := h.executor.Sleep(ctx, h.clickHoldDuration()); err != nil {
		return err
	}

	releasePos := pressPos.Add(Vector2D{
		X: h.rng.NormFloat64() * h.dynamicConfig.ClickNoise * 0.5,
		Y: h.rng.NormFloat64() * h.dynamicConfig.ClickNoise * 0.5,
	})
	h.currentPos = releasePos

	mouseUp := schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          releasePos.X,
		Y:          releasePos.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	}
	if err := h.executor.DispatchMouseEvent(ctx, mouseUp); err != nil {
		return err
	}
	h.currentButtonState = schemas.ButtonNone

	return nil
}

// clickHoldDuration picks how long the button stays pressed, uniformly within
// the configured bounds. Assumes the caller holds the lock.
func (h *Humanoid) clickHoldDuration() time.Duration {
	minMs := h.dynamicConfig.ClickHoldMinMs
	maxMs := h.dynamicConfig.ClickHoldMaxMs
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	holdMs := minMs + h.rng.Intn(maxMs-minMs+1)
	return time.Duration(holdMs) * time.Millisecond
}
