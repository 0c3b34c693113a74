// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
)

//go:embed geometry.js
var geometryProbeJS string

// Per-operation ceilings. These bound single CDP round trips, not whole
// interactions; the operational context may be tighter.
const (
	mouseEventTimeout = 10 * time.Second
	keyEventTimeout   = 10 * time.Second
	shortcutTimeout   = 5 * time.Second
	geometryTimeout   = 10 * time.Second
	scriptTimeout     = 20 * time.Second
)

// cdpExecutor implements humanoid.Executor against a live tab. It is the
// bridge between the browser-agnostic synthesis code and chromedp.
type cdpExecutor struct {
	logger *zap.Logger
	// runActions points at Session.RunActions, which combines the tab
	// context with the operational one.
	runActions func(ctx context.Context, actions ...chromedp.Action) error
}

var _ humanoid.Executor = (*cdpExecutor)(nil)

func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return e.runActions(ctx, chromedp.Sleep(d))
}

func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))

	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}

	opCtx, cancel := context.WithTimeout(ctx, mouseEventTimeout)
	defer cancel()

	if err := e.runActions(opCtx, p); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("mouse event %s timed out after %v: %w", data.Type, mouseEventTimeout, opCtx.Err())
		}
		return err
	}
	return nil
}

func (e *cdpExecutor) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := context.WithTimeout(ctx, keyEventTimeout)
	defer cancel()

	if err := e.runActions(opCtx, chromedp.KeyEvent(keys)); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("key event timed out after %v: %w", keyEventTimeout, opCtx.Err())
		}
		return err
	}
	return nil
}

// DispatchStructuredKey presses and releases a key combination in one batch.
func (e *cdpExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	modifiers := cdpModifiers(data.Modifiers)

	keyDown := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(modifiers).
		WithKey(data.Key)
	keyUp := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(modifiers).
		WithKey(data.Key)

	opCtx, cancel := context.WithTimeout(ctx, shortcutTimeout)
	defer cancel()

	if err := e.runActions(opCtx, keyDown, keyUp); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("shortcut sequence timed out after %v: %w", shortcutTimeout, opCtx.Err())
		}
		return fmt.Errorf("dispatching shortcut sequence: %w", err)
	}
	return nil
}

// cdpModifiers converts the schema bitmask to the CDP one.
func cdpModifiers(m schemas.KeyModifier) input.Modifier {
	var mods input.Modifier
	if m&schemas.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if m&schemas.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if m&schemas.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if m&schemas.ModShift != 0 {
		mods |= input.ModifierShift
	}
	return mods
}

// GetElementGeometry reads the bounding quad, dimensions and tag metadata of
// the first match in one JS round trip.
func (e *cdpExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	opCtx, cancel := context.WithTimeout(ctx, geometryTimeout)
	defer cancel()

	raw, err := e.evaluate(opCtx, geometryProbeJS, []interface{}{selector})
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("timeout reading geometry for %q: %w", selector, opCtx.Err())
		}
		return nil, fmt.Errorf("geometry probe for %q: %w", selector, err)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("element %q not found or not visible: %w", selector, schemas.ErrElementNotFound)
	}

	var geom schemas.ElementGeometry
	if err := json.Unmarshal(raw, &geom); err != nil {
		return nil, fmt.Errorf("unmarshaling geometry for %q: %w (payload: %s)", selector, err, string(raw))
	}
	if geom.Width <= 0 || geom.Height <= 0 {
		return nil, fmt.Errorf("element %q has degenerate dimensions %dx%d: %w",
			selector, geom.Width, geom.Height, schemas.ErrElementNotFound)
	}
	return &geom, nil
}

// ExecuteScript evaluates script in the page. A bare function expression is
// invoked with args; a plain expression evaluates as-is and rejects args,
// since CDP Evaluate has no parameter channel of its own.
func (e *cdpExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	expr, err := invocationExpression(script, args)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	raw, err := e.evaluate(opCtx, expr, nil)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("script evaluation timed out after %v: %w", scriptTimeout, opCtx.Err())
		}
		return nil, fmt.Errorf("script evaluation: %w", err)
	}
	return raw, nil
}

// evaluate runs one Runtime.evaluate with promise awaiting and by-value
// results. When args is non-nil the script is first turned into an
// invocation expression.
func (e *cdpExecutor) evaluate(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	expr := script
	if args != nil {
		var err error
		expr, err = invocationExpression(script, args)
		if err != nil {
			return nil, err
		}
	}

	var res json.RawMessage
	err := e.runActions(ctx,
		chromedp.Evaluate(expr, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// invocationExpression turns a classic function source plus arguments into a
// single evaluatable expression.
func invocationExpression(script string, args []interface{}) (string, error) {
	if !isFunctionSource(script) {
		if len(args) > 0 {
			return "", fmt.Errorf("script arguments require a function expression")
		}
		return script, nil
	}

	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return "(" + script + ")(" + strings.Join(encoded, ", ") + ")", nil
}

// isFunctionSource reports whether the script is a bare function expression,
// possibly preceded by line comments.
func isFunctionSource(script string) bool {
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.HasPrefix(trimmed, "function") ||
			strings.HasPrefix(trimmed, "async function")
	}
	return false
}
