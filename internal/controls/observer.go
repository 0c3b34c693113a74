// Package controls reads and enforces the state of checkbox-like form
// controls on pages whose client-side framework re-renders asynchronously.
// Reads go through several independent signals that are reduced to a
// confidence-scored verdict; writes go through an enforcement state machine
// that waits for hydration to settle and verifies the control keeps its
// state after the page had a chance to revert it.
package controls

import (
	"context"
	"fmt"

	_ "embed"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser/humanoid"
)

//go:embed observer.js
var signalProbeJS string

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ControlTarget names the DOM facets of one checkbox-like control. Only
// Input is required; the optional selectors unlock additional signals and
// enforcement strategies.
type ControlTarget struct {
	// Input selects the native input element.
	Input string
	// Wrapper selects the styled element that carries the checked CSS class.
	Wrapper string
	// CheckedClass is the class name looked for on Wrapper. Empty disables
	// the wrapper signal.
	CheckedClass string
	// Label selects the clickable label associated with the input.
	Label string
	// Checkmark selects the checkmark graphic whose visibility tracks the
	// checked state.
	Checkmark string
	// Region selects the DOM subtree watched for mutation settling before
	// reads and writes. Falls back to Wrapper, then Input.
	Region string
}

// regionSelector returns the subtree to watch for mutations.
func (t ControlTarget) regionSelector() string {
	if t.Region != "" {
		return t.Region
	}
	if t.Wrapper != "" {
		return t.Wrapper
	}
	return t.Input
}

// Observer reads a control's state without mutating anything. Safe to call
// repeatedly for polling.
type Observer struct {
	executor humanoid.Executor
	logger   *zap.Logger
}

func NewObserver(executor humanoid.Executor, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{executor: executor, logger: logger}
}

// signalProbe mirrors the object returned by observer.js. Pointer fields
// keep the unreadable/null case distinct from false.
type signalProbe struct {
	Property     *bool `json:"property"`
	ScriptRead   *bool `json:"scriptRead"`
	WrapperClass *bool `json:"wrapperClass"`
	Checkmark    *bool `json:"checkmark"`
}

// CollectSignals gathers the independent reads of the control in a single
// script pass. Signals that cannot be read come back as SignalUnknown; only
// a failed script evaluation is an error.
func (o *Observer) CollectSignals(ctx context.Context, target ControlTarget) (schemas.ControlSignals, error) {
	var signals schemas.ControlSignals

	args := []interface{}{target.Input, target.Wrapper, target.CheckedClass, target.Checkmark}
	raw, err := o.executor.ExecuteScript(ctx, signalProbeJS, args)
	if err != nil {
		return signals, fmt.Errorf("signal probe failed: %w", err)
	}

	trimmed := string(raw)
	if trimmed == "" || trimmed == "null" || trimmed == "undefined" {
		return signals, fmt.Errorf("signal probe returned no result")
	}

	var probe signalProbe
	if err := jsonAPI.Unmarshal(raw, &probe); err != nil {
		return signals, fmt.Errorf("signal probe returned malformed result: %w", err)
	}

	signals.Property = toSignal(probe.Property)
	signals.ScriptRead = toSignal(probe.ScriptRead)
	signals.WrapperClass = toSignal(probe.WrapperClass)
	signals.Checkmark = toSignal(probe.Checkmark)
	return signals, nil
}

// Observe collects the signals and reduces them to a verdict.
func (o *Observer) Observe(ctx context.Context, target ControlTarget) (schemas.ControlObservation, error) {
	signals, err := o.CollectSignals(ctx, target)
	if err != nil {
		return schemas.ControlObservation{}, err
	}

	obs := Reduce(signals)
	o.logger.Debug("Observed control state",
		zap.String("input", target.Input),
		zap.Stringer("property", signals.Property),
		zap.Stringer("scriptRead", signals.ScriptRead),
		zap.Stringer("wrapperClass", signals.WrapperClass),
		zap.Stringer("checkmark", signals.Checkmark),
		zap.Bool("resolved", obs.ResolvedState),
		zap.String("confidence", string(obs.Confidence)),
		zap.Bool("assumed", obs.Assumed),
	)
	return obs, nil
}

// Reduce resolves one set of signals into a confidence-scored verdict. Pure;
// never touches the page.
//
// The native property and the script read form an authoritative pair: when
// both are readable and agree the verdict is high confidence and the visual
// signals are ignored. Otherwise a weighted vote decides, with authoritative
// signals counting double so two agreeing visuals cannot outvote a property
// read. A lone authoritative signal corroborated by a visual grades medium;
// everything else, including a disagreeing pair, grades low. With nothing
// readable at all the verdict is "assume checked" so the caller does not
// blind-click a control that may already be in the wanted state.
func Reduce(s schemas.ControlSignals) schemas.ControlObservation {
	obs := schemas.ControlObservation{Signals: s}

	prop, propOK := s.Property.Bool()
	script, scriptOK := s.ScriptRead.Bool()

	if propOK && scriptOK && prop == script {
		obs.ResolvedState = prop
		obs.Confidence = schemas.ConfidenceHigh
		return obs
	}

	var trueWeight, falseWeight int
	tally := func(state schemas.SignalState, weight int) {
		if v, ok := state.Bool(); ok {
			if v {
				trueWeight += weight
			} else {
				falseWeight += weight
			}
		}
	}
	tally(s.Property, 2)
	tally(s.ScriptRead, 2)
	tally(s.WrapperClass, 1)
	tally(s.Checkmark, 1)

	if trueWeight == 0 && falseWeight == 0 {
		obs.ResolvedState = true
		obs.Confidence = schemas.ConfidenceLow
		obs.Assumed = true
		return obs
	}

	switch {
	case trueWeight > falseWeight:
		obs.ResolvedState = true
	case falseWeight > trueWeight:
		obs.ResolvedState = false
	default:
		obs.ResolvedState = tieBreak(s)
	}

	obs.Confidence = grade(s, obs.ResolvedState, trueWeight, falseWeight)
	return obs
}

// grade rates how much to trust the resolved value. Assumes the authoritative
// pair did not agree (Reduce returns high before getting here).
func grade(s schemas.ControlSignals, resolved bool, trueWeight, falseWeight int) schemas.Confidence {
	prop, propOK := s.Property.Bool()
	script, scriptOK := s.ScriptRead.Bool()

	// A disagreeing authoritative pair means the page is actively lying to
	// one of the reads. Nothing downstream can repair that.
	if propOK && scriptOK {
		return schemas.ConfidenceLow
	}
	if trueWeight == falseWeight {
		return schemas.ConfidenceLow
	}

	authAgrees := (propOK && prop == resolved) || (scriptOK && script == resolved)

	wrap, wrapOK := s.WrapperClass.Bool()
	mark, markOK := s.Checkmark.Bool()
	visualAgrees := (wrapOK && wrap == resolved) || (markOK && mark == resolved)

	if authAgrees && visualAgrees {
		return schemas.ConfidenceMedium
	}
	return schemas.ConfidenceLow
}

// tieBreak prefers the plain DOM reads in a fixed order when the vote lands
// even. Only called when at least one signal is readable.
func tieBreak(s schemas.ControlSignals) bool {
	for _, state := range []schemas.SignalState{s.Property, s.WrapperClass, s.Checkmark, s.ScriptRead} {
		if v, ok := state.Bool(); ok {
			return v
		}
	}
	return true
}

func toSignal(v *bool) schemas.SignalState {
	switch {
	case v == nil:
		return schemas.SignalUnknown
	case *v:
		return schemas.SignalTrue
	default:
		return schemas.SignalFalse
	}
}
