package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/courierlabs/messaging-test-harness/framework"
)

type commandParams struct {
	configPath string
	port       int
	storePath  string
	filters    framework.RegexFilters
	debug      bool
	debugAll   bool
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.configPath, "config", "", "path to the suite configuration file")
	fs.IntVar(&c.port, "port", 0, "override the listener port from the configuration")
	fs.StringVar(&c.storePath, "store", "", "override the store path from the configuration")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	return true
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// rerunCommand builds a copy-pasteable command line that re-runs exactly the
// failed tests from a finished suite run.
func rerunCommand(params commandParams, results framework.Results) string {
	var b commandBuilder
	b.add(os.Args[0])
	if params.configPath != "" {
		b.add("-config", params.configPath)
	}
	b.add("-debug")
	for _, f := range results.Failures {
		b.add("-run", "^"+f.TestID.String()+"$")
	}
	return b.String()
}
