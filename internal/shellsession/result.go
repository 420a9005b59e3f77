package shellsession

import "time"

// TerminatedExitCode is reported for commands finalized by timeout or interruption (128 + SIGTERM).
const TerminatedExitCode = 143

const (
	timedOutMessageConstant    = "Command execution timed out"
	interruptedMessageConstant = "Command was interrupted"
)

// Result is the outcome of one command. Command-level failures, timeouts and
// interruptions are all reported here rather than as errors.
type Result struct {
	Stdout      string `yaml:"stdout"`
	Stderr      string `yaml:"stderr"`
	Code        int    `yaml:"code"`
	Interrupted bool   `yaml:"interrupted"`
}

// Succeeded reports whether the command completed with exit code zero.
func (result Result) Succeeded() bool {
	return result.Code == 0 && !result.Interrupted
}

// OutputCallback receives the cumulative standard output and standard error of the running command.
type OutputCallback func(stdout string, stderr string)

// ExecOptions tunes a single Exec call.
type ExecOptions struct {
	// Timeout bounds the command from dispatch; zero uses the session default.
	Timeout  time.Duration
	OnOutput OutputCallback
}

func appendTerminationMessage(standardError string, message string) string {
	if len(standardError) == 0 || standardError[len(standardError)-1] == '\n' {
		return standardError + message
	}
	return standardError + "\n" + message
}
