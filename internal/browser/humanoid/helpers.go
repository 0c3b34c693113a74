package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"go.uber.org/zap"
)

// quadCenter averages the four corners of an element quad. A quad with
// fewer than eight coordinates cannot be centered.
func quadCenter(geo *schemas.ElementGeometry) (Vector2D, bool) {
	if geo == nil || len(geo.Vertices) < 8 {
		return Vector2D{}, false
	}
	var c Vector2D
	for i := 0; i+1 < 8; i += 2 {
		c.X += geo.Vertices[i]
		c.Y += geo.Vertices[i+1]
	}
	return c.Mul(0.25), true
}

// elementGeometry asks the executor for the selector's content quad and
// rejects anything the pointer could not land on. Callers hold the lock.
func (h *Humanoid) elementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	geo, err := h.executor.GetElementGeometry(ctx, selector)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("humanoid: geometry retrieval failed for '%s': %w", selector, err)
	case geo == nil:
		return nil, fmt.Errorf("humanoid: executor returned nil geometry for '%s'", selector)
	case len(geo.Vertices) < 8:
		return nil, fmt.Errorf("humanoid: element '%s' returned invalid geometry", selector)
	case geo.Width <= 0 || geo.Height <= 0:
		h.logger.Debug("element found but has zero size",
			zap.String("selector", selector),
			zap.Int64("width", geo.Width),
			zap.Int64("height", geo.Height))
		return nil, fmt.Errorf("humanoid: element '%s' is not interactable (zero size)", selector)
	}
	return geo, nil
}

// visibleCenter scrolls the element into view when the options allow it
// and returns the center of its quad. Callers hold the lock.
func (h *Humanoid) visibleCenter(ctx context.Context, selector string, opts *InteractionOptions) (Vector2D, error) {
	if err := h.ensureVisible(ctx, selector, opts); err != nil {
		return Vector2D{}, err
	}
	geo, err := h.elementGeometry(ctx, selector)
	if err != nil {
		return Vector2D{}, err
	}
	center, ok := quadCenter(geo)
	if !ok {
		return Vector2D{}, fmt.Errorf("humanoid: element '%s' has invalid geometry structure", selector)
	}
	return center, nil
}
