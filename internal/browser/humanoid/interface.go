// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// InteractionOptions configures a single humanoid action.
type InteractionOptions struct {
	// SkipScrollIntoView disables the implicit smooth scroll that normally
	// runs before an element is targeted. The zero value keeps scrolling on.
	SkipScrollIntoView bool
	// Field can be used to influence the pointer trajectory, e.g. to pull a
	// drag toward its drop target.
	Field *PotentialField
}

// Controller is the high-level interface for human-like interactions.
// Implemented by the Humanoid struct.
type Controller interface {
	MoveTo(ctx context.Context, selector string, opts *InteractionOptions) error
	IntelligentClick(ctx context.Context, selector string, opts *InteractionOptions) error
	DragAndDrop(ctx context.Context, startSelector, endSelector string, opts *InteractionOptions) error
	Type(ctx context.Context, selector string, text string, opts *InteractionOptions) error
	// Shortcut executes a keyboard shortcut expression (e.g. "ctrl+a").
	Shortcut(ctx context.Context, keysExpression string) error
	// ScrollBy performs a smooth inertial scroll of the main viewport.
	ScrollBy(ctx context.Context, deltaY float64) error
	// ScrollIntoView scrolls until the selector is comfortably visible.
	ScrollIntoView(ctx context.Context, selector string) error
	// SimulateReading plays a short content-consumption plan: scrolling,
	// pausing and idling as a person skimming the page would.
	SimulateReading(ctx context.Context, viewportHeight float64) error
	// CognitivePause sleeps for a fatigue-scaled, noisy duration.
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
}

// Executor is the low-level surface the Humanoid drives. Implementations
// translate these calls into real browser input (CDP) or record them in tests.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	SendKeys(ctx context.Context, keys string) error
	// DispatchStructuredKey presses a key combination. The executor owns the
	// KeyDown and KeyUp sequencing.
	DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error
	GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

// ControlKey defines constants for common control characters used in SendKeys.
type ControlKey string

const (
	KeyBackspace ControlKey = "\b"
	KeyEnter     ControlKey = "\r"
	KeyTab       ControlKey = "\t"
	KeyEscape    ControlKey = "\x1b"
)
