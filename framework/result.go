package framework

import (
	"strings"
)

// Results is the outcome of a full suite run.
type Results struct {
	Tests    []TestResult
	Failures []TestResult

	// SuiteAbortErr is non-nil if an infrastructure failure caused the
	// remaining tests to be skipped rather than run.
	SuiteAbortErr error
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0 && r.SuiteAbortErr == nil
}

// TestID identifies a test as the path of its nested Run names.
type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}
