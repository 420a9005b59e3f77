package main

import (
	"fmt"
	"os"

	"github.com/temirov/shellkeeper/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the shellkeeper command-line application and exits with the status of the last shell command.
func main() {
	exitCode, executionError := cli.Execute()
	if executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
	}
	os.Exit(exitCode)
}
