package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"go.uber.org/zap"
)

// DragAndDrop grabs the start element, drags it along a curved path shaped by
// an attracting force at the drop target, and releases. Slider-style captcha
// widgets are the main consumer.
func (h *Humanoid) DragAndDrop(ctx context.Context, startSelector, endSelector string, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.updateFatigue(1.5)

	start, err := h.visibleCenter(ctx, startSelector, opts)
	if err != nil {
		h.logger.Error("drag failed: could not resolve start element",
			zap.String("selector", startSelector),
			zap.Error(err),
		)
		return fmt.Errorf("dragdrop: could not get start position: %w", err)
	}

	end, err := h.visibleCenter(ctx, endSelector, opts)
	if err != nil {
		h.logger.Error("drag failed: could not resolve end element",
			zap.String("selector", endSelector),
			zap.Error(err),
		)
		return fmt.Errorf("dragdrop: could not get end position: %w", err)
	}

	// Approach the handle before grabbing it.
	if err := h.moveToSelector(ctx, startSelector, opts); err != nil {
		return err
	}
	if err := h.cognitivePause(ctx, 80, 30); err != nil {
		return err
	}

	if err := h.pressMouse(ctx); err != nil {
		return err
	}
	if err := h.dragHeld(ctx, start, end, opts); err != nil {
		// The grab succeeded, so the button must come back up no matter
		// why the drag stopped.
		h.releaseMouse(context.Background())
		return err
	}
	return h.releaseMouse(ctx)
}

// pressMouse pushes the left button down at the current position.
// Assumes the caller holds the lock.
func (h *Humanoid) pressMouse(ctx context.Context) error {
	at := h.currentPos
	err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          at.X,
		Y:          at.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	})
	if err != nil {
		return err
	}
	h.currentButtonState = schemas.ButtonLeft
	return nil
}

// dragHeld carries the grabbed element from start to end while the button
// stays down. The drop target attracts the path and the pickup point mildly
// repels it, which bows the trajectory the way a real wrist does.
// Assumes the caller holds the lock.
func (h *Humanoid) dragHeld(ctx context.Context, start, end Vector2D, opts *InteractionOptions) error {
	if err := h.cognitivePause(ctx, 100, 40); err != nil {
		return err
	}

	field := NewPotentialField()
	if opts != nil && opts.Field != nil {
		field = opts.Field
	}
	pull := h.dynamicConfig.FittsA
	if pull <= 0 {
		pull = 100.0
	}
	field.AddSource(end, pull, 150.0)
	field.AddSource(start, -pull*0.2, 100.0)

	held := &InteractionOptions{Field: field, SkipScrollIntoView: true}
	if err := h.moveToVector(ctx, end, held); err != nil {
		h.logger.Warn("drag movement failed, releasing mouse", zap.Error(err))
		return err
	}
	return h.cognitivePause(ctx, 70, 30)
}

// releaseMouse lets go of the left button if it is held.
// Assumes the caller holds the lock.
func (h *Humanoid) releaseMouse(ctx context.Context) error {
	if h.currentButtonState != schemas.ButtonLeft {
		return nil
	}
	at := h.currentPos

	err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          at.X,
		Y:          at.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	})
	if err != nil {
		// Update state regardless, otherwise a failed release wedges every
		// later action in drag mode.
		h.logger.Error("failed to dispatch mouse release, clearing state anyway", zap.Error(err))
	}
	h.currentButtonState = schemas.ButtonNone

	return err
}
