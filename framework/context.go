package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
	aborted    bool
	abortErr   error
}

// Context provides the testing.T-like surface that suite tests run against.
// It exists because the suite runs outside of the Go test runner, against a
// live server and store rather than in-process fakes.
type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
}

// Run executes a top-level suite action and collects results. Tests within
// the action execute strictly sequentially; the suite shares one mutable
// namespace and one capture buffer, so concurrent execution is not supported.
func Run(
	filter func(TestID) bool,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	env.results.SuiteAbortErr = env.abortErr
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil {
			if c.skipped {
				c.env.results.Tests = append(c.env.results.Tests,
					TestResult{TestID: c.id, Skipped: true})
				return
			}
			c.failed = true
			var addError error
			if _, ok := r.(*Context); ok {
				if len(c.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				c.errors = append(c.errors, addError)
				c.env.testLogger.TestError(c.id, addError)
			}
		}
		// The root context has no name of its own; it only contributes a
		// result if the suite action itself failed outside of any test.
		if len(c.id.Path) == 0 && !c.failed {
			return
		}
		result := TestResult{TestID: c.id, Errors: c.errors}
		c.env.results.Tests = append(c.env.results.Tests, result)
		if c.failed {
			c.env.results.Failures = append(c.env.results.Failures, result)
		}
	}()

	action(c)
}

func (c *Context) ID() TestID {
	return c.id
}

// Run runs a subtest. If a previous test raised a suite-fatal error, the
// subtest is reported as skipped instead of being run.
func (c *Context) Run(name string, action func(*Context)) {
	id := TestID{Path: append(append([]string(nil), c.id.Path...), name)}

	c.env.testLogger.TestStarted(id)
	if c.env.aborted {
		c.env.testLogger.TestSkipped(id, fmt.Sprintf("suite aborted: %s", c.env.abortErr))
		return
	}
	if c.env.filter != nil && !c.env.filter(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
	} else {
		c.env.testLogger.TestFinished(id, c1.failed, c1.debugLogger.Output())
	}
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.failed = true
	err := fmt.Errorf(format, args...)
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, err)
}

func (c *Context) FailNow() {
	panic(c)
}

// FatalSuiteError fails the current test and marks the whole run as aborted:
// every subsequent test is skipped. Use it for infrastructure failures, such
// as a failed purge, where continuing would run tests against a contaminated
// environment.
func (c *Context) FatalSuiteError(err error) {
	c.env.aborted = true
	c.env.abortErr = err
	c.Errorf("suite-fatal error: %s", err)
	c.FailNow()
}

func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}
