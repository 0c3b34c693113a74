package humanoid

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// mockExecutor implements the Executor interface for testing. Mocks must not
// touch Humanoid internals while a Humanoid method holds the mutex; tests
// communicate with overrides through captured variables or context
// cancellation instead.
type mockExecutor struct {
	t                *testing.T
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	structuredKeys   []schemas.KeyEventData
	sleepDurations   []time.Duration
	returnErr        error

	// Function overrides. An override may call the corresponding Default*
	// method when the standard recording behavior is still wanted.
	MockGetElementGeometry    func(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
	MockExecuteScript         func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
	MockSleep                 func(ctx context.Context, d time.Duration) error
	MockDispatchMouseEvent    func(ctx context.Context, data schemas.MouseEventData) error
	MockSendKeys              func(ctx context.Context, keys string) error
	MockDispatchStructuredKey func(ctx context.Context, data schemas.KeyEventData) error
}

func newMockExecutor(t *testing.T) *mockExecutor {
	return &mockExecutor{t: t}
}

// snapshot copies a recorded slice under the mock's lock so assertions can
// range over it while the humanoid keeps dispatching.
func snapshot[T any](m *mockExecutor, src *[]T) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(*src))
	copy(out, *src)
	return out
}

func (m *mockExecutor) events() []schemas.MouseEventData { return snapshot(m, &m.dispatchedEvents) }
func (m *mockExecutor) keys() []string                   { return snapshot(m, &m.sentKeys) }
func (m *mockExecutor) sleeps() []time.Duration          { return snapshot(m, &m.sleepDurations) }

// gate reports the context error, if any. Cleanup paths run on
// context.Background(), which never carries one, so cleanup traffic
// always passes.
func (m *mockExecutor) gate(ctx context.Context) error {
	return ctx.Err()
}

// forcedErr reads the injected failure under the lock.
func (m *mockExecutor) forcedErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.returnErr
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	if m.MockDispatchMouseEvent != nil {
		return m.MockDispatchMouseEvent(ctx, data)
	}
	return m.DefaultDispatchMouseEvent(ctx, data)
}

func (m *mockExecutor) DefaultDispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	// Record before any failure so cleanup paths (releaseMouse with a
	// background context) still show up in assertions.
	m.mu.Lock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	err := m.returnErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.gate(ctx)
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return m.DefaultSleep(ctx, d)
}

func (m *mockExecutor) DefaultSleep(ctx context.Context, d time.Duration) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	return nil
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	if m.MockSendKeys != nil {
		return m.MockSendKeys(ctx, keys)
	}
	return m.DefaultSendKeys(ctx, keys)
}

func (m *mockExecutor) DefaultSendKeys(ctx context.Context, keys string) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	// The attempt is recorded even when it then fails, matching a browser
	// that received the keys but broke mid-dispatch.
	m.mu.Lock()
	m.sentKeys = append(m.sentKeys, keys)
	err := m.returnErr
	m.mu.Unlock()
	return err
}

func (m *mockExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	if m.MockDispatchStructuredKey != nil {
		return m.MockDispatchStructuredKey(ctx, data)
	}
	if err := m.gate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.returnErr != nil {
		return m.returnErr
	}
	m.structuredKeys = append(m.structuredKeys, data)
	return nil
}

func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if m.MockGetElementGeometry != nil {
		return m.MockGetElementGeometry(ctx, selector)
	}
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	if err := m.forcedErr(); err != nil {
		return nil, err
	}

	// Default: a 120x40 button-ish box at (300, 400).
	return &schemas.ElementGeometry{
		Vertices: []float64{300, 400, 420, 400, 420, 440, 300, 440},
		Width:    120,
		Height:   40,
		TagName:  "BUTTON",
	}, nil
}

func (m *mockExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, script, args)
	}
	return m.DefaultExecuteScript(ctx, script, args)
}

func (m *mockExecutor) DefaultExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	if err := m.forcedErr(); err != nil {
		return nil, err
	}

	if script == scrollProbeJS {
		// The target is already comfortably in view.
		out, err := json.Marshal(scrollProbe{
			ElementExists:  true,
			IsIntersecting: true,
			ViewportHeight: 900,
		})
		if err != nil {
			if m.t != nil {
				m.t.Fatalf("failed to marshal default scroll probe: %v", err)
			}
			return nil, err
		}
		return out, nil
	}

	return json.Marshal(map[string]interface{}{})
}
