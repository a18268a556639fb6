package retrieve

import (
	"errors"
	"fmt"
)

// ErrCookieExpired means the archive bounced us to its login page. The
// search cannot proceed; the operator has to re-run the cookie capture flow.
var ErrCookieExpired = errors.New("archive session expired, cookie refresh required")

// Step names used in error reporting.
const (
	StepNavigate    = "navigate"
	StepFormFill    = "form_fill"
	StepSubmit      = "submit"
	StepResultsWait = "results_wait"
	StepParseRows   = "parse_rows"
	StepPaginate    = "paginate"
	StepMessage     = "message_fetch"
	StepEmit        = "emit"
)

// StepTimeoutError marks a step that did not complete within its deadline.
// Per-message timeouts skip the message; per-page timeouts abort pagination.
// Neither fails the search.
type StepTimeoutError struct {
	Step string
	Err  error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Step, e.Err)
}

func (e *StepTimeoutError) Unwrap() error { return e.Err }

// ShapeError marks upstream markup that did not match what we expect. The
// affected row or message is skipped.
type ShapeError struct {
	Step   string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected upstream shape: %s", e.Step, e.Detail)
}

// IsStepTimeout reports whether err is a step timeout.
func IsStepTimeout(err error) bool {
	var t *StepTimeoutError
	return errors.As(err, &t)
}
