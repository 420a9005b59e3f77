package shell

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/temirov/shellkeeper/internal/shellsession"
	"github.com/temirov/shellkeeper/internal/utils"
)

const yamlIndentConstant = 2

// CommandReport pairs a command with its result for structured output.
type CommandReport struct {
	Command   string              `yaml:"command"`
	Directory string              `yaml:"directory,omitempty"`
	Result    shellsession.Result `yaml:",inline"`
}

// resultPrinter writes command output to the console, optionally streaming partial snapshots.
type resultPrinter struct {
	stdout *utils.IncrementalPrinter
	stderr *utils.IncrementalPrinter
}

func newResultPrinter(stdout io.Writer, stderr io.Writer) *resultPrinter {
	return &resultPrinter{stdout: utils.NewIncrementalPrinter(stdout), stderr: utils.NewIncrementalPrinter(stderr)}
}

// callback adapts the printer to an output callback.
func (printer *resultPrinter) callback() shellsession.OutputCallback {
	return func(stdout string, stderr string) {
		_ = printer.stdout.Print(stdout)
		_ = printer.stderr.Print(stderr)
	}
}

// finish prints whatever part of the final result has not been streamed yet.
func (printer *resultPrinter) finish(result shellsession.Result) error {
	if printError := printer.stdout.Print(result.Stdout); printError != nil {
		return printError
	}
	return printer.stderr.Print(result.Stderr)
}

func writeYAMLReports(writer io.Writer, reports []CommandReport) error {
	encoder := yaml.NewEncoder(utils.NewFlushingWriter(writer))
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(reports); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}
