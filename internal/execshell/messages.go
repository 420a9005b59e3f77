package execshell

import (
	"fmt"
	"strings"
)

const (
	startedMessageTemplateConstant           = "Running %s"
	succeededMessageTemplateConstant         = "Completed %s"
	failedMessageTemplateConstant            = "%s failed with exit code %d%s"
	executionFailedMessageTemplateConstant   = "%s failed: %s"
	workingDirectorySuffixTemplateConstant   = " (in %s)"
	standardErrorSuffixTemplateConstant      = ": %s"
	commandArgumentsJoinSeparatorConstant    = " "
	argumentEllipsisConstant                 = "..."
	unknownFailureMessageConstant            = "unknown error"
	maximumArgumentLabelLengthConstant       = 80
	maximumStandardErrorSuffixLengthConstant = 200
)

// CommandMessageFormatter renders human-readable lifecycle messages for helper commands.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(startedMessageTemplateConstant, formatter.formatCommandLabel(command))
}

// BuildSuccessMessage describes a command that exited with code zero.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(succeededMessageTemplateConstant, formatter.formatCommandLabel(command))
}

// BuildFailureMessage describes a command that exited with a non-zero code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	standardErrorSuffix := ""
	if standardError := formatter.trimmedStandardError(result.StandardError); len(standardError) > 0 {
		standardErrorSuffix = fmt.Sprintf(standardErrorSuffixTemplateConstant, standardError)
	}
	return fmt.Sprintf(failedMessageTemplateConstant, formatter.formatCommandLabel(command), result.ExitCode, standardErrorSuffix)
}

// BuildExecutionFailureMessage describes a command that could not be started or timed out.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(executionFailedMessageTemplateConstant, formatter.formatCommandLabel(command), failureMessage)
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	label := strings.TrimSpace(command.Description)
	if len(label) == 0 {
		commandParts := []string{command.Name}
		if len(command.Details.Arguments) > 0 {
			commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
		}
		label = truncate(strings.Join(commandParts, commandArgumentsJoinSeparatorConstant), maximumArgumentLabelLengthConstant)
	}

	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return label
	}
	return label + fmt.Sprintf(workingDirectorySuffixTemplateConstant, workingDirectory)
}

func (formatter CommandMessageFormatter) trimmedStandardError(standardError string) string {
	return truncate(strings.TrimSpace(standardError), maximumStandardErrorSuffixLengthConstant)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + argumentEllipsisConstant
}
