package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
)

// fakePage models one portal page well enough to drive the contact
// machine: selector presence, input values, checkbox state, clickable
// elements and the visible body text. It is the single source of truth;
// the executor, controller and driver below are thin views over it.
type fakePage struct {
	mu sync.Mutex

	// present maps selectors to element existence.
	present map[string]bool
	// fieldValue holds the current value of each input.
	fieldValue map[string]string
	// checkedState holds checkbox state by input selector.
	checkedState map[string]bool
	// labelFor maps a label selector to the checkbox input it toggles.
	labelFor map[string]string
	// stuck marks checkboxes that swallow every click without flipping.
	stuck map[string]bool
	// disabledSubmit marks submit selectors that are present but not ready.
	disabledSubmit map[string]bool
	// clickActions runs when the named selector is clicked. Actions run
	// with the page lock held and must mutate fields directly.
	clickActions map[string]func()
	// textButtons maps visible button text to an action. A clicked
	// button disappears, like a dismissed overlay.
	textButtons map[string]func()

	bodyText string
	html     string

	// captchaRemaining makes that many challenge probes report a visible
	// challenge before it clears. Token injection clears it immediately.
	captchaRemaining int
	captchaSelector  string

	clicks       []string
	buttonClicks []string
}

func newFakePage() *fakePage {
	return &fakePage{
		present:        make(map[string]bool),
		fieldValue:     make(map[string]string),
		checkedState:   make(map[string]bool),
		labelFor:       make(map[string]string),
		stuck:          make(map[string]bool),
		disabledSubmit: make(map[string]bool),
		clickActions:   make(map[string]func()),
		textButtons:    make(map[string]func()),
		html:           "<html><body></body></html>",
	}
}

func (p *fakePage) clickedSelectors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.clicks))
	copy(out, p.clicks)
	return out
}

func (p *fakePage) clickedButtons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.buttonClicks))
	copy(out, p.buttonClicks)
	return out
}

func (p *fakePage) checked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkedState[selector]
}

func (p *fakePage) value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fieldValue[selector]
}

func (p *fakePage) click(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickLocked(selector)
}

func (p *fakePage) setValue(selector, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fieldValue[selector] = value
}

func (p *fakePage) clickLocked(selector string) {
	p.clicks = append(p.clicks, selector)
	if input, ok := p.labelFor[selector]; ok {
		if !p.stuck[input] {
			p.checkedState[input] = !p.checkedState[input]
		}
		return
	}
	if cur, ok := p.checkedState[selector]; ok {
		if !p.stuck[selector] {
			p.checkedState[selector] = !cur
		}
		return
	}
	if action, ok := p.clickActions[selector]; ok && action != nil {
		action()
	}
}

func (p *fakePage) clickButtonLocked(wanted []string) json.RawMessage {
	for _, want := range wanted {
		w := strings.ToLower(want)
		for text, action := range p.textButtons {
			lowered := strings.ToLower(text)
			if lowered == w || (len(w) > 3 && strings.Contains(lowered, w)) {
				if action != nil {
					action()
				}
				delete(p.textButtons, text)
				p.buttonClicks = append(p.buttonClicks, text)
				return json.RawMessage(fmt.Sprintf(`{"clicked":true,"text":%q}`, text))
			}
		}
	}
	return json.RawMessage(`{"clicked":false,"text":""}`)
}

// evalScript answers the probes the machine and its collaborators send.
// The machine's own probes dispatch by source identity; the control
// observer, stability bridge and challenge scripts by marker.
func (p *fakePage) evalScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch script {
	case elementPresentJS:
		sel, _ := args[0].(string)
		return json.RawMessage(fmt.Sprintf(`%t`, p.present[sel])), nil

	case fieldValueJS:
		sel, _ := args[0].(string)
		return json.RawMessage(fmt.Sprintf(`%q`, p.fieldValue[sel])), nil

	case viewportHeightJS:
		return json.RawMessage(`900`), nil

	case clickVisibleButtonJS:
		wanted, _ := args[0].([]string)
		return p.clickButtonLocked(wanted), nil

	case submitReadyJS:
		sel, _ := args[0].(string)
		if !p.present[sel] {
			return json.RawMessage(`{"present":false,"ready":false}`), nil
		}
		return json.RawMessage(fmt.Sprintf(`{"present":true,"ready":%t}`, !p.disabledSubmit[sel])), nil

	case successProbeJS:
		texts, _ := args[0].([]string)
		gone, _ := args[1].(string)
		lowered := strings.ToLower(p.bodyText)
		for _, t := range texts {
			if t != "" && strings.Contains(lowered, strings.ToLower(t)) {
				return json.RawMessage(fmt.Sprintf(`{"confirmed":true,"signal":"text","match":%q}`, t)), nil
			}
		}
		if gone != "" && !p.present[gone] {
			return json.RawMessage(fmt.Sprintf(`{"confirmed":true,"signal":"form-gone","match":%q}`, gone)), nil
		}
		return json.RawMessage(`{"confirmed":false,"signal":"","match":""}`), nil

	case scriptClickJS:
		sel, _ := args[0].(string)
		if !p.present[sel] {
			return json.RawMessage(`false`), nil
		}
		p.clickLocked(sel)
		return json.RawMessage(`true`), nil
	}

	switch {
	case strings.Contains(script, "__dk_stability__"):
		return json.RawMessage(`{"installed":false,"observing":true,"quietMs":100000}`), nil

	case strings.Contains(script, "scriptRead"):
		sel, _ := args[0].(string)
		if state, ok := p.checkedState[sel]; ok && p.present[sel] {
			return json.RawMessage(fmt.Sprintf(
				`{"property":%t,"scriptRead":%t,"wrapperClass":null,"checkmark":null}`, state, state)), nil
		}
		return json.RawMessage(`{"property":null,"scriptRead":null,"wrapperClass":null,"checkmark":null}`), nil

	case strings.Contains(script, "solvedCaptcha"):
		p.captchaRemaining = 0
		return json.RawMessage(`true`), nil

	case strings.Contains(script, "siteKey"):
		if p.captchaRemaining > 0 {
			p.captchaRemaining--
			return json.RawMessage(fmt.Sprintf(
				`{"present":true,"selector":%q,"kind":"recaptcha","pageUrl":"https://www.testportal.example/contact","siteKey":""}`,
				p.captchaSelector)), nil
		}
		return json.RawMessage(`{"present":false}`), nil

	case strings.Contains(script, "el.click()"):
		sel, _ := args[0].(string)
		if !p.present[sel] {
			return json.RawMessage(`false`), nil
		}
		p.clickLocked(sel)
		return json.RawMessage(`true`), nil
	}

	return json.RawMessage(`null`), nil
}

// fakeExecutor implements humanoid.Executor over the page model. Sleeps
// return immediately so polling loops run at full speed.
type fakeExecutor struct {
	page *fakePage

	mu     sync.Mutex
	sleeps []time.Duration

	MockExecuteScript func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

func (e *fakeExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	e.mu.Lock()
	e.sleeps = append(e.sleeps, d)
	e.mu.Unlock()
	return nil
}

func (e *fakeExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	return ctx.Err()
}

func (e *fakeExecutor) SendKeys(ctx context.Context, keys string) error {
	return ctx.Err()
}

func (e *fakeExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	return ctx.Err()
}

func (e *fakeExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &schemas.ElementGeometry{
		Vertices: []float64{300, 400, 420, 400, 420, 440, 300, 440},
		Width:    120,
		Height:   40,
		TagName:  "input",
	}, nil
}

func (e *fakeExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if e.MockExecuteScript != nil {
		return e.MockExecuteScript(ctx, script, args)
	}
	return e.page.evalScript(ctx, script, args)
}

// fakeController implements humanoid.Controller by applying pointer
// outcomes straight to the page model.
type fakeController struct {
	page *fakePage

	mu        sync.Mutex
	typedText map[string]string

	MockIntelligentClick func(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error
	MockType             func(ctx context.Context, selector, text string, opts *humanoid.InteractionOptions) error
}

func (c *fakeController) typed(selector string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typedText[selector]
}

func (c *fakeController) MoveTo(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error {
	return ctx.Err()
}

func (c *fakeController) IntelligentClick(ctx context.Context, selector string, opts *humanoid.InteractionOptions) error {
	if c.MockIntelligentClick != nil {
		return c.MockIntelligentClick(ctx, selector, opts)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.page.click(selector)
	return nil
}

func (c *fakeController) DragAndDrop(ctx context.Context, startSelector, endSelector string, opts *humanoid.InteractionOptions) error {
	return ctx.Err()
}

func (c *fakeController) Type(ctx context.Context, selector string, text string, opts *humanoid.InteractionOptions) error {
	if c.MockType != nil {
		return c.MockType(ctx, selector, text, opts)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	if c.typedText == nil {
		c.typedText = make(map[string]string)
	}
	c.typedText[selector] = text
	c.mu.Unlock()
	c.page.setValue(selector, text)
	return nil
}

func (c *fakeController) Shortcut(ctx context.Context, keysExpression string) error {
	return ctx.Err()
}

func (c *fakeController) ScrollBy(ctx context.Context, deltaY float64) error {
	return ctx.Err()
}

func (c *fakeController) ScrollIntoView(ctx context.Context, selector string) error {
	return ctx.Err()
}

func (c *fakeController) SimulateReading(ctx context.Context, viewportHeight float64) error {
	return ctx.Err()
}

func (c *fakeController) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	return ctx.Err()
}

// fakeDriver bundles the page views into the Driver surface.
type fakeDriver struct {
	page       *fakePage
	executor   *fakeExecutor
	controller *fakeController

	mu          sync.Mutex
	navigations []string
	navigateErr error
}

func newFakeDriver() *fakeDriver {
	page := newFakePage()
	return &fakeDriver{
		page:       page,
		executor:   &fakeExecutor{page: page},
		controller: &fakeController{page: page},
	}
}

func (d *fakeDriver) visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.mu.Lock()
	d.navigations = append(d.navigations, url)
	err := d.navigateErr
	d.mu.Unlock()
	return err
}

func (d *fakeDriver) Controller() humanoid.Controller { return d.controller }

func (d *fakeDriver) Executor() humanoid.Executor { return d.executor }

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return []byte("\x89PNG\r\n\x1a\nfake"), nil
}

func (d *fakeDriver) HTML(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	d.page.mu.Lock()
	defer d.page.mu.Unlock()
	return d.page.html, nil
}

// recordingJournal captures terminal attempts handed to the machine.
type recordingJournal struct {
	mu       sync.Mutex
	attempts []schemas.ContactAttempt
	err      error
}

func (j *recordingJournal) Record(attempt schemas.ContactAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.attempts = append(j.attempts, attempt)
	return nil
}

func (j *recordingJournal) recorded() []schemas.ContactAttempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]schemas.ContactAttempt, len(j.attempts))
	copy(out, j.attempts)
	return out
}

// recordingSink captures completion events.
type recordingSink struct {
	mu     sync.Mutex
	events []schemas.ContactEvent
}

func (s *recordingSink) ContactCompleted(ctx context.Context, event schemas.ContactEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) received() []schemas.ContactEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.ContactEvent, len(s.events))
	copy(out, s.events)
	return out
}
