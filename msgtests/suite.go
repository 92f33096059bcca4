package msgtests

import (
	"github.com/courierlabs/messaging-test-harness/framework"
)

// RunTestSuite runs the whole suite against an environment prepared by the
// sequencer. The caller is responsible for SuiteSetup beforehand and
// SuiteTeardown afterwards.
func RunTestSuite(env *Env, filter framework.Filter, testLogger framework.TestLogger) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := &T{context: c, env: env}

		t.Group("onboarding", DoOnboardingTests)
		t.Group("capture", DoCaptureTests)
		t.Group("isolation", DoIsolationTests)
	})
}
