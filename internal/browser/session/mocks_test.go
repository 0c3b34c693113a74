// internal/browser/session/mocks_test.go
package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

// fakeExecutor records executor traffic and serves scripted responses. The
// session's polling paths route all waiting through Sleep, so tests finish
// instantly.
type fakeExecutor struct {
	t *testing.T

	mu          sync.Mutex
	scripts     []string
	sleepCalls  []time.Duration
	scriptCount int

	MockExecuteScript func(call int, script string, args []interface{}) (json.RawMessage, error)
}

func (f *fakeExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleepCalls = append(f.sleepCalls, d)
	return nil
}

func (f *fakeExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	return nil
}

func (f *fakeExecutor) SendKeys(ctx context.Context, keys string) error { return nil }

func (f *fakeExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	return nil
}

func (f *fakeExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	return &schemas.ElementGeometry{
		Vertices: []float64{0, 0, 10, 0, 10, 10, 0, 10},
		Width:    10,
		Height:   10,
		TagName:  "DIV",
	}, nil
}

func (f *fakeExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	call := f.scriptCount
	f.scriptCount++
	f.scripts = append(f.scripts, script)
	mock := f.MockExecuteScript
	f.mu.Unlock()

	if mock != nil {
		return mock(call, script, args)
	}
	return json.RawMessage(`null`), nil
}

func (f *fakeExecutor) sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleepCalls))
	copy(out, f.sleepCalls)
	return out
}

func (f *fakeExecutor) scriptCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scriptCount
}

// newTestSession builds a Session with a fake executor and no live tab. The
// background tab context means chromedp calls fail fast instead of hanging,
// which the state-save paths tolerate.
func newTestSession(t *testing.T, cfg *config.Config, exec *fakeExecutor) *Session {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	cfg.Session.DataDir = t.TempDir()

	s := &Session{
		id:        "test-session",
		platform:  "testplatform",
		cfg:       cfg,
		logger:    zap.NewNop(),
		tabCtx:    context.Background(),
		tabCancel: func() {},
		store:     NewStateStore(cfg.Session.DataDir),
		createdAt: time.Now(),
		executor:  exec,
	}
	return s
}
