package controls

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
)

// fakeExecutor implements humanoid.Executor. Script-driven tests install a
// MockExecuteScript that models the page; everything else records calls.
type fakeExecutor struct {
	t                *testing.T
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sleepDurations   []time.Duration
	scriptCalls      []string

	MockGetElementGeometry func(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
	MockExecuteScript      func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
	MockDispatchMouseEvent func(ctx context.Context, data schemas.MouseEventData) error
}

func newFakeExecutor(t *testing.T) *fakeExecutor {
	return &fakeExecutor{
		t:                t,
		dispatchedEvents: make([]schemas.MouseEventData, 0),
		sleepDurations:   make([]time.Duration, 0),
		scriptCalls:      make([]string, 0),
	}
}

func (m *fakeExecutor) events() []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.MouseEventData, len(m.dispatchedEvents))
	copy(out, m.dispatchedEvents)
	return out
}

func (m *fakeExecutor) pressEvents() []schemas.MouseEventData {
	var out []schemas.MouseEventData
	for _, ev := range m.events() {
		if ev.Type == schemas.MousePress {
			out = append(out, ev)
		}
	}
	return out
}

func (m *fakeExecutor) sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleepDurations))
	copy(out, m.sleepDurations)
	return out
}

func (m *fakeExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil && ctx != context.Background() {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	return nil
}

func (m *fakeExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	if m.MockDispatchMouseEvent != nil {
		return m.MockDispatchMouseEvent(ctx, data)
	}
	return m.DefaultDispatchMouseEvent(ctx, data)
}

func (m *fakeExecutor) DefaultDispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	if ctx.Err() != nil && ctx != context.Background() {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	return nil
}

func (m *fakeExecutor) SendKeys(ctx context.Context, keys string) error {
	return nil
}

func (m *fakeExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	return nil
}

func (m *fakeExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if m.MockGetElementGeometry != nil {
		return m.MockGetElementGeometry(ctx, selector)
	}
	return m.DefaultGetElementGeometry(ctx, selector)
}

// DefaultGetElementGeometry serves a 120x40 box at (300,400), center
// (360,420).
func (m *fakeExecutor) DefaultGetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if ctx.Err() != nil && ctx != context.Background() {
		return nil, ctx.Err()
	}
	return &schemas.ElementGeometry{
		Vertices: []float64{300, 400, 420, 400, 420, 440, 300, 440},
		Width:    120,
		Height:   40,
		TagName:  "input",
		Type:     "checkbox",
	}, nil
}

func (m *fakeExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	m.scriptCalls = append(m.scriptCalls, script)
	m.mu.Unlock()
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, script, args)
	}
	return m.DefaultExecuteScript(ctx, script, args)
}

// DefaultExecuteScript serves a page that is already settled, has an
// unreadable control and accepts script clicks. Tests that need a concrete
// control state install a page model via MockExecuteScript.
func (m *fakeExecutor) DefaultExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if ctx.Err() != nil && ctx != context.Background() {
		return nil, ctx.Err()
	}
	switch script {
	case stabilityBridgeJS:
		return json.RawMessage(`{"installed":false,"observing":true,"quietMs":100000}`), nil
	case signalProbeJS:
		return json.RawMessage(`{"property":null,"scriptRead":null,"wrapperClass":null,"checkmark":null}`), nil
	case scriptClickJS:
		return json.RawMessage(`true`), nil
	}
	return json.RawMessage(`null`), nil
}

func (m *fakeExecutor) stabilityCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.scriptCalls {
		if s == stabilityBridgeJS {
			n++
		}
	}
	return n
}

// fakeController implements humanoid.Controller without any real pointer
// synthesis. Defaults are recording no-ops.
type fakeController struct {
	mu              sync.Mutex
	clicked         []string
	moved           []string
	scrolledInto    []string
	cognitivePauses int

	MockIntelligentClick func(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error
	MockScrollIntoView   func(ctx context.Context, selector string) error
}

func newFakeController() *fakeController {
	return &fakeController{}
}

func (c *fakeController) clicks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.clicked))
	copy(out, c.clicked)
	return out
}

func (c *fakeController) MoveTo(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moved = append(c.moved, selector)
	return nil
}

func (c *fakeController) IntelligentClick(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error {
	if c.MockIntelligentClick != nil {
		return c.MockIntelligentClick(ctx, selector, opts)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicked = append(c.clicked, selector)
	return nil
}

func (c *fakeController) DragAndDrop(ctx context.Context, startSelector, endSelector string, opts *humanoid.InteractionOptions) error {
	return nil
}

func (c *fakeController) Type(ctx context.Context, selector string, text string, opts *humanoid.InteractionOptions) error {
	return nil
}

func (c *fakeController) Shortcut(ctx context.Context, keysExpression string) error {
	return nil
}

func (c *fakeController) ScrollBy(ctx context.Context, deltaY float64) error {
	return nil
}

func (c *fakeController) ScrollIntoView(ctx context.Context, selector string) error {
	if c.MockScrollIntoView != nil {
		return c.MockScrollIntoView(ctx, selector)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrolledInto = append(c.scrolledInto, selector)
	return nil
}

func (c *fakeController) SimulateReading(ctx context.Context, viewportHeight float64) error {
	return nil
}

func (c *fakeController) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cognitivePauses++
	return nil
}
