package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
	"github.com/xkilldash9x/doorknock-cli/internal/captcha"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
)

const (
	formRevealPolls     = 20
	formRevealInterval  = 250 * time.Millisecond
	submitReadyPolls    = 10
	submitReadyInterval = 300 * time.Millisecond
	maxPopupPasses      = 3
	popupSettleDelay    = 400 * time.Millisecond
)

const elementPresentJS = `function (selector) {
    return !!document.querySelector(selector);
}`

const fieldValueJS = `function (selector) {
    const el = document.querySelector(selector);
    if (!el) {
        return '';
    }
    return el.value || '';
}`

const viewportHeightJS = `function () {
    return window.innerHeight || 0;
}`

// clickVisibleButtonJS clicks the first visible button-like element whose
// text matches one of the wanted phrases. Short phrases only match
// exactly; substring matching on them would hit unrelated controls.
const clickVisibleButtonJS = `function (texts) {
    const wanted = (texts || []).map((t) => t.toLowerCase());
    const candidates = document.querySelectorAll("button, a, input[type='button'], input[type='submit'], [role='button']");
    for (const el of candidates) {
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') {
            continue;
        }
        const rect = el.getBoundingClientRect();
        if (rect.width === 0 || rect.height === 0) {
            continue;
        }
        const text = (el.innerText || el.value || '').trim();
        if (!text) {
            continue;
        }
        const lowered = text.toLowerCase();
        for (const want of wanted) {
            if (lowered === want || (want.length > 3 && lowered.includes(want))) {
                el.click();
                return { clicked: true, text: text };
            }
        }
    }
    return { clicked: false, text: '' };
}`

const submitReadyJS = `function (selector) {
    const el = document.querySelector(selector);
    if (!el) {
        return { present: false, ready: false };
    }
    const style = window.getComputedStyle(el);
    const visible = style.display !== 'none' && style.visibility !== 'hidden';
    const enabled = !el.disabled && el.getAttribute('aria-disabled') !== 'true';
    return { present: true, ready: visible && enabled };
}`

const successProbeJS = `function (texts, goneSelector) {
    const body = document.body ? (document.body.innerText || '') : '';
    const lowered = body.toLowerCase();
    for (const t of (texts || [])) {
        if (t && lowered.includes(t.toLowerCase())) {
            return { confirmed: true, signal: 'text', match: t };
        }
    }
    if (goneSelector && !document.querySelector(goneSelector)) {
        return { confirmed: true, signal: 'form-gone', match: goneSelector };
    }
    return { confirmed: false, signal: '', match: '' };
}`

const scriptClickJS = `function (selector) {
    const el = document.querySelector(selector);
    if (!el) {
        return false;
    }
    el.click();
    return true;
}`

func (o *Orchestrator) navigate(ctx context.Context, run *runContext, log *zap.Logger) error {
	u, err := url.Parse(run.listing.URL)
	if err != nil {
		return fmt.Errorf("listing URL %q: %w", run.listing.URL, err)
	}
	target := o.site.ContactURL(u)
	if err := o.driver.Navigate(ctx, target); err != nil {
		return err
	}
	o.dismissPopups(ctx, log)
	return nil
}

func (o *Orchestrator) locateForm(ctx context.Context, run *runContext, log *zap.Logger) error {
	if form := o.findFormVariant(ctx, log); form != nil {
		run.form = form
		log.Debug("Contact form present", zap.String("variant", form.Name))
		return nil
	}
	if o.site.ContactAffordance.Empty() {
		return fmt.Errorf("no contact form variant on the page: %w", schemas.ErrElementNotFound)
	}

	log.Debug("No form variant yet, trying the contact affordance")
	if err := o.revealForm(ctx, log); err != nil {
		return err
	}
	o.dismissPopups(ctx, log)

	for i := 0; i < formRevealPolls; i++ {
		if err := o.executor.Sleep(ctx, formRevealInterval); err != nil {
			return err
		}
		if form := o.findFormVariant(ctx, log); form != nil {
			run.form = form
			log.Debug("Contact form appeared", zap.String("variant", form.Name))
			return nil
		}
	}
	return fmt.Errorf("contact form never appeared after the affordance click: %w", schemas.ErrElementNotFound)
}

// findFormVariant probes the variants in declaration order; the first
// present one wins. Probe failures skip the variant.
func (o *Orchestrator) findFormVariant(ctx context.Context, log *zap.Logger) *platform.FormSpec {
	for i := range o.site.Forms {
		form := &o.site.Forms[i]
		present, err := o.elementPresent(ctx, form.Selector)
		if err != nil {
			log.Debug("Form presence probe failed",
				zap.String("variant", form.Name),
				zap.Error(err),
			)
			continue
		}
		if present {
			return form
		}
	}
	return nil
}

// revealForm clicks the gating contact affordance. The reveal is an
// optional step, so only cancellation propagates; everything else is
// absorbed and the caller's form poll decides whether it worked.
func (o *Orchestrator) revealForm(ctx context.Context, log *zap.Logger) error {
	aff := o.site.ContactAffordance
	if aff.Selector != "" {
		present, err := o.elementPresent(ctx, aff.Selector)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && present {
			if err := o.controller.IntelligentClick(ctx, aff.Selector, nil); err == nil {
				return nil
			} else if ctx.Err() != nil {
				return ctx.Err()
			} else {
				log.Debug("Affordance click failed, trying the text scan", zap.Error(err))
			}
		}
	}
	if len(aff.ButtonTexts) > 0 {
		res, err := o.clickVisibleButton(ctx, aff.ButtonTexts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Affordance text scan failed", zap.Error(err))
			return nil
		}
		if res.Clicked {
			log.Debug("Revealed contact form", zap.String("button", res.Text))
		}
	}
	return nil
}

func (o *Orchestrator) populateFields(ctx context.Context, run *runContext, log *zap.Logger) error {
	o.attentionPass(ctx, log)

	for _, field := range run.form.Fields {
		present, err := o.elementPresent(ctx, field.Selector)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if field.Required {
				return fmt.Errorf("probing field %q: %w", field.Profile, err)
			}
			log.Debug("Field probe failed, skipping optional field",
				zap.String("field", field.Profile),
				zap.Error(err),
			)
			continue
		}
		if !present {
			if field.Required {
				return fmt.Errorf("required field %q (%s): %w", field.Profile, field.Selector, schemas.ErrElementNotFound)
			}
			log.Debug("Optional field absent", zap.String("field", field.Profile))
			continue
		}

		value := run.values[field.Profile]
		if value == "" {
			log.Debug("No profile value for field", zap.String("field", field.Profile))
			continue
		}

		if err := o.clearIfPrefilled(ctx, field.Selector, log); err != nil {
			return err
		}
		if err := o.controller.Type(ctx, field.Selector, value, nil); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if field.Required {
				return fmt.Errorf("typing into %q: %w", field.Profile, err)
			}
			log.Debug("Typing into optional field failed",
				zap.String("field", field.Profile),
				zap.Error(err),
			)
		}
	}
	return nil
}

// attentionPass plays a short reading plan before the form is touched,
// so the interaction is preceded by plausible content consumption.
// Cosmetic: failures are absorbed.
func (o *Orchestrator) attentionPass(ctx context.Context, log *zap.Logger) {
	height := 900.0
	if raw, err := o.executor.ExecuteScript(ctx, viewportHeightJS, nil); err == nil {
		var h float64
		if jsonAPI.Unmarshal(raw, &h) == nil && h > 0 {
			height = h
		}
	}
	if err := o.controller.SimulateReading(ctx, height); err != nil && ctx.Err() == nil {
		log.Debug("Reading simulation failed", zap.Error(err))
	}
}

// clearIfPrefilled empties an input the portal pre-populated, the way a
// person would: focus, select all, delete.
func (o *Orchestrator) clearIfPrefilled(ctx context.Context, selector string, log *zap.Logger) error {
	raw, err := o.executor.ExecuteScript(ctx, fieldValueJS, []interface{}{selector})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Field value probe failed", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	var current string
	if err := jsonAPI.Unmarshal(raw, &current); err != nil || current == "" {
		return nil
	}

	log.Debug("Clearing prefilled field", zap.String("selector", selector))
	if err := o.controller.IntelligentClick(ctx, selector, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	if err := o.controller.Shortcut(ctx, "ctrl+a"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Select-all failed, typing over the existing value", zap.Error(err))
		return nil
	}
	if err := o.executor.SendKeys(ctx, string(humanoid.KeyBackspace)); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (o *Orchestrator) enforceControls(ctx context.Context, run *runContext, log *zap.Logger) error {
	for _, box := range run.form.Checkboxes {
		present, err := o.elementPresent(ctx, box.Target.Input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Control presence probe failed", zap.String("control", box.Name), zap.Error(err))
			// Let the enforcer's own observation pass judge the control.
			present = true
		}
		if !present {
			if box.Optional {
				log.Debug("Optional control absent", zap.String("control", box.Name))
				continue
			}
			log.Warn("Required control missing from the form, submitting without it",
				zap.String("control", box.Name),
				zap.String("selector", box.Target.Input),
			)
			continue
		}

		report, err := o.enforcer.Enforce(ctx, box.Target, box.Checked)
		if err != nil {
			if errors.Is(err, schemas.ErrEnforcementExhausted) {
				// Deliberate: a contact without the extra control set beats no
				// contact at all. The warning is the loudest non-fatal signal
				// this flow has.
				log.Warn("Control enforcement exhausted, submitting anyway",
					zap.String("control", box.Name),
					zap.Bool("wanted", box.Checked),
					zap.Int("retries", report.Retries),
					zap.Bool("resolved", report.Final.ResolvedState),
					zap.String("confidence", string(report.Final.Confidence)),
				)
				continue
			}
			return fmt.Errorf("enforcing %q: %w", box.Name, err)
		}
		log.Debug("Control enforced",
			zap.String("control", box.Name),
			zap.String("outcome", string(report.Outcome)),
			zap.String("strategy", string(report.Strategy)),
		)
	}
	return nil
}

func (o *Orchestrator) awaitSubmitReady(ctx context.Context, run *runContext, log *zap.Logger) error {
	for i := 0; i < submitReadyPolls; i++ {
		for _, selector := range run.form.SubmitSelectors {
			probe, err := o.submitProbe(ctx, selector)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Debug("Submit probe failed", zap.String("selector", selector), zap.Error(err))
				continue
			}
			if probe.Ready {
				run.submit = selector
				log.Debug("Submit control ready", zap.String("selector", selector))
				return nil
			}
			if probe.Present {
				log.Debug("Submit control present but not interactable", zap.String("selector", selector))
			}
		}
		if err := o.executor.Sleep(ctx, submitReadyInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("submit control never became interactable: %w", schemas.ErrElementNotFound)
}

func (o *Orchestrator) submit(ctx context.Context, run *runContext, log *zap.Logger) error {
	challenge, err := o.gate.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Challenge probe failed, proceeding to submit", zap.Error(err))
	}
	if challenge != nil {
		log.Info("Challenge blocks submission, suspending",
			zap.String("kind", challenge.Kind),
			zap.String("selector", challenge.Selector),
		)
		outcome, err := o.gate.AwaitResolution(ctx, o.captchaMode)
		if err != nil {
			return fmt.Errorf("challenge resolution: %w", err)
		}
		if outcome != captcha.Resolved {
			return schemas.ErrCaptchaTimeout
		}
		log.Info("Challenge resolved, resuming submission")
	}

	if o.cfg.DryRun {
		return errDryRun
	}

	// The duplicate check and the claim are one critical section. Claiming
	// before the click keeps two racing runs from both submitting; the
	// cost is that a click failure below leaves the listing claimed.
	already, err := o.ledger.CheckAndMark(ctx, run.listing.ID, run.listing.Platform)
	if err != nil {
		return fmt.Errorf("ledger claim: %w", err)
	}
	if already {
		return errClaimedElsewhere
	}

	if err := o.controller.IntelligentClick(ctx, run.submit, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Pointer click on submit failed, falling back to a script click", zap.Error(err))
		if err := o.scriptClick(ctx, run.submit); err != nil {
			return fmt.Errorf("triggering submission: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) verifyResult(ctx context.Context, run *runContext, log *zap.Logger) error {
	timeout := o.cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	poll := o.cfg.VerifyPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	polls := int(timeout / poll)
	if polls < 1 {
		polls = 1
	}

	for i := 0; i < polls; i++ {
		// Portals like to stack a privacy overlay on top of the confirmation.
		o.dismissPopups(ctx, log)

		probe, err := o.successProbe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The submission often navigates; the probe fails while the new
			// document loads.
			log.Debug("Success probe failed, polling on", zap.Error(err))
		} else if probe.Confirmed {
			log.Info("Submission confirmed",
				zap.String("signal", probe.Signal),
				zap.String("match", probe.Match),
			)
			return nil
		}

		if o.site.Success.XPath != "" && o.xpathConfirms(ctx, log) {
			log.Info("Submission confirmed", zap.String("signal", "xpath"))
			return nil
		}

		if err := o.executor.Sleep(ctx, poll); err != nil {
			return err
		}
	}
	return schemas.ErrSubmissionUnconfirmed
}

// xpathConfirms evaluates the platform's confirmation XPath over a
// capture of the rendered document.
func (o *Orchestrator) xpathConfirms(ctx context.Context, log *zap.Logger) bool {
	html, err := o.driver.HTML(ctx)
	if err != nil {
		log.Debug("Document capture for confirmation failed", zap.Error(err))
		return false
	}
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		log.Debug("Captured document failed to parse", zap.Error(err))
		return false
	}
	node, err := htmlquery.Query(doc, o.site.Success.XPath)
	if err != nil {
		log.Debug("Confirmation query failed", zap.Error(err))
		return false
	}
	return node != nil
}

// dismissPopups clicks through consent and safety overlays by their
// visible button text. Bounded: stacked overlays are rare and a page
// that keeps growing matching buttons is not one to keep clicking.
func (o *Orchestrator) dismissPopups(ctx context.Context, log *zap.Logger) {
	texts := o.site.PopupButtonTexts
	if len(texts) == 0 {
		return
	}
	for i := 0; i < maxPopupPasses; i++ {
		res, err := o.clickVisibleButton(ctx, texts)
		if err != nil || !res.Clicked {
			return
		}
		log.Debug("Dismissed overlay", zap.String("button", res.Text))
		if err := o.executor.Sleep(ctx, popupSettleDelay); err != nil {
			return
		}
	}
}

func (o *Orchestrator) elementPresent(ctx context.Context, selector string) (bool, error) {
	raw, err := o.executor.ExecuteScript(ctx, elementPresentJS, []interface{}{selector})
	if err != nil {
		return false, err
	}
	var present bool
	if err := jsonAPI.Unmarshal(raw, &present); err != nil {
		return false, fmt.Errorf("presence probe returned malformed result: %w", err)
	}
	return present, nil
}

type buttonClick struct {
	Clicked bool   `json:"clicked"`
	Text    string `json:"text"`
}

func (o *Orchestrator) clickVisibleButton(ctx context.Context, texts []string) (buttonClick, error) {
	var res buttonClick
	raw, err := o.executor.ExecuteScript(ctx, clickVisibleButtonJS, []interface{}{texts})
	if err != nil {
		return res, err
	}
	if err := jsonAPI.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("button scan returned malformed result: %w", err)
	}
	return res, nil
}

type submitState struct {
	Present bool `json:"present"`
	Ready   bool `json:"ready"`
}

func (o *Orchestrator) submitProbe(ctx context.Context, selector string) (submitState, error) {
	var res submitState
	raw, err := o.executor.ExecuteScript(ctx, submitReadyJS, []interface{}{selector})
	if err != nil {
		return res, err
	}
	if err := jsonAPI.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("submit probe returned malformed result: %w", err)
	}
	return res, nil
}

type successSignal struct {
	Confirmed bool   `json:"confirmed"`
	Signal    string `json:"signal"`
	Match     string `json:"match"`
}

func (o *Orchestrator) successProbe(ctx context.Context) (successSignal, error) {
	var res successSignal
	args := []interface{}{o.site.Success.Texts, o.site.Success.GoneSelector}
	raw, err := o.executor.ExecuteScript(ctx, successProbeJS, args)
	if err != nil {
		return res, err
	}
	if err := jsonAPI.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("success probe returned malformed result: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) scriptClick(ctx context.Context, selector string) error {
	raw, err := o.executor.ExecuteScript(ctx, scriptClickJS, []interface{}{selector})
	if err != nil {
		return err
	}
	var clicked bool
	if err := jsonAPI.Unmarshal(raw, &clicked); err != nil {
		return fmt.Errorf("script click returned malformed result: %w", err)
	}
	if !clicked {
		return fmt.Errorf("%q: %w", selector, schemas.ErrElementNotFound)
	}
	return nil
}
