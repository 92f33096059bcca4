package harness

import "errors"

var (
	// ErrBindFailed means the listener could not bind its fixed port. The
	// port is reserved for the suite, so this is fatal: only one suite
	// instance may run on a host at a time, and a retry would not help.
	ErrBindFailed = errors.New("could not bind listener port")

	// ErrServerState means a lifecycle transition was requested from a state
	// that does not allow it.
	ErrServerState = errors.New("invalid server lifecycle transition")

	// ErrOverlap means two tests attempted to execute concurrently. Tests
	// share one namespace and one capture buffer, so overlap would produce
	// interference indistinguishable from a real defect.
	ErrOverlap = errors.New("overlapping test execution")
)
