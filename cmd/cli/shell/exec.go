package shell

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/temirov/shellkeeper/internal/shellsession"
)

const (
	execUseConstant                 = "exec <command> [command...]"
	execShortDescriptionConstant    = "Run commands in order on one persistent shell"
	execLongDescriptionConstant     = "exec runs each argument as a shell command on the same session, so directory changes and exported variables carry over. The exit status of the last command becomes the exit status of shellkeeper."
	streamFlagNameConstant          = "stream"
	streamFlagUsageConstant         = "Print output while commands run"
	stopOnFailureFlagNameConstant   = "stop-on-failure"
	stopOnFailureFlagUsageConstant  = "Skip remaining commands after a non-zero exit"
	execMissingCommandErrorConstant = "at least one command is required"
)

// ExecCommandBuilder assembles the exec command.
type ExecCommandBuilder struct {
	Dependencies Dependencies
}

// Build constructs the exec command.
func (builder *ExecCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   execUseConstant,
		Short: execShortDescriptionConstant,
		Long:  execLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().Duration(timeoutFlagNameConstant, 0, timeoutFlagUsageConstant)
	command.Flags().Bool(streamFlagNameConstant, false, streamFlagUsageConstant)
	command.Flags().Bool(stopOnFailureFlagNameConstant, false, stopOnFailureFlagUsageConstant)
	addOutputFormatFlag(command)

	return command, nil
}

func (builder *ExecCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(execMissingCommandErrorConstant)
	}

	format := readOutputFormat(command)
	timeout, _ := command.Flags().GetDuration(timeoutFlagNameConstant)
	stream, _ := command.Flags().GetBool(streamFlagNameConstant)
	stopOnFailure, _ := command.Flags().GetBool(stopOnFailureFlagNameConstant)

	manager, managerError := builder.Dependencies.manager()
	if managerError != nil {
		return managerError
	}
	defer func() {
		_ = manager.Close()
	}()

	executionContext, cancel := interruptibleContext(command)
	defer cancel()

	reports := make([]CommandReport, 0, len(arguments))
	lastCode := 0
	for _, shellCommand := range arguments {
		options := shellsession.ExecOptions{Timeout: timeout}
		printer := newResultPrinter(command.OutOrStdout(), command.ErrOrStderr())
		if stream && format == outputFormatTextConstant {
			options.OnOutput = printer.callback()
		}

		result, execError := manager.Exec(executionContext, shellCommand, options)
		if execError != nil {
			return execError
		}
		lastCode = result.Code

		if format == outputFormatTextConstant {
			if printError := printer.finish(result); printError != nil {
				return printError
			}
		}
		reports = append(reports, CommandReport{Command: shellCommand, Result: result})

		if executionContext.Err() != nil || (stopOnFailure && !result.Succeeded()) {
			break
		}
	}

	builder.Dependencies.recordExitCode(lastCode)
	if format == outputFormatYAMLConstant {
		return writeYAMLReports(command.OutOrStdout(), reports)
	}
	return nil
}
