package schemas

// SignalState is a tri-state reading of one checkbox signal. A signal can be
// unavailable (the selector matched nothing, or the read failed) without
// invalidating the observation as a whole.
type SignalState int

const (
	SignalUnknown SignalState = iota
	SignalFalse
	SignalTrue
)

// Bool converts a known signal to its boolean value. ok is false for
// SignalUnknown.
func (s SignalState) Bool() (value, ok bool) {
	switch s {
	case SignalTrue:
		return true, true
	case SignalFalse:
		return false, true
	}
	return false, false
}

func (s SignalState) String() string {
	switch s {
	case SignalTrue:
		return "true"
	case SignalFalse:
		return "false"
	}
	return "unknown"
}

// Confidence grades how reliable a resolved observation is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ControlSignals holds the independent reads of a single checkbox-like
// control. Property and ScriptRead are the authoritative pair; WrapperClass
// and Checkmark are visual corroboration only.
type ControlSignals struct {
	// Property is the control's native checked/selected property as reported
	// by the driver.
	Property SignalState
	// ScriptRead is an isolated scripting-engine read of the same property.
	ScriptRead SignalState
	// WrapperClass reports whether a "checked" CSS class is present on the
	// control's wrapper element.
	WrapperClass SignalState
	// Checkmark reports whether the checkmark graphic is visible.
	Checkmark SignalState
}

// ControlObservation is the reduced verdict over one set of signals. It is
// recomputed on every poll and never persisted.
type ControlObservation struct {
	Signals       ControlSignals
	ResolvedState bool
	Confidence    Confidence
	// Assumed is set when no signal was readable and the resolved state comes
	// from the documented assume-checked fallback rather than a real read.
	Assumed bool
}
