package framework

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	passColor = color.New(color.FgGreen)
)

// ConsoleTestLogger prints test progress to standard output as the suite runs.
// Debug output captured during a test is replayed according to the two flags,
// so that a failed test can be diagnosed without re-running the suite.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput CapturedOutput) {
	if failed {
		fmt.Printf("  %s: %s\n", failColor.Sprint("FAILED"), id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(os.Stdout, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		fmt.Printf("  %s: %s\n", skipColor.Sprint("SKIPPED"), id)
	} else {
		fmt.Printf("  %s: %s (%s)\n", skipColor.Sprint("SKIPPED"), id, reason)
	}
}

// PrintResults prints the summary line for a finished suite run.
func PrintResults(results Results) {
	if results.SuiteAbortErr != nil {
		failColor.Printf("SUITE ABORTED: %s\n", results.SuiteAbortErr)
	}
	if results.OK() {
		passColor.Printf("All tests passed (%d)\n", len(results.Tests))
		return
	}
	failColor.Printf("FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		fmt.Printf("  * %s\n", f.TestID)
		for _, err := range f.Errors {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Printf("    - %s\n", line)
			}
		}
	}
}
