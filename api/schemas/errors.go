package schemas

import "errors"

// Failure taxonomy for contact attempts. Callers classify with errors.Is;
// wrapping with fmt.Errorf("...: %w", ...) preserves the class.
var (
	// ErrElementNotFound indicates a selector matched nothing. Absorbed and
	// logged for optional steps, fatal for mandatory ones.
	ErrElementNotFound = errors.New("element not found")

	// ErrStateAmbiguous indicates the observer could not reach a confident
	// verdict about a control's state.
	ErrStateAmbiguous = errors.New("control state ambiguous")

	// ErrEnforcementExhausted indicates the checkbox enforcer ran out of
	// retries. This does not abort the surrounding submission: the
	// orchestrator proceeds with a loud warning because a contact without the
	// extra control set beats no contact at all.
	ErrEnforcementExhausted = errors.New("enforcement retries exhausted")

	// ErrCaptchaTimeout indicates a challenge was detected and did not
	// resolve within the configured ceiling.
	ErrCaptchaTimeout = errors.New("captcha resolution timed out")

	// ErrSubmissionUnconfirmed indicates no success indicator appeared within
	// the verification window after submit.
	ErrSubmissionUnconfirmed = errors.New("submission not confirmed")

	// ErrSessionExpired indicates the platform no longer considers the
	// session logged in.
	ErrSessionExpired = errors.New("session expired")
)

// RetryableLater reports whether a failed attempt may be retried in a future
// run. Duplicate protection is unaffected: a retryable failure never reaches
// the ledger.
func RetryableLater(err error) bool {
	return errors.Is(err, ErrCaptchaTimeout) || errors.Is(err, ErrSessionExpired)
}
