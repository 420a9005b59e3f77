package execshell

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	logFieldCommandNameConstant = "command_name"
	logFieldArgumentsConstant   = "arguments"
	logFieldExitCodeConstant    = "exit_code"
	logFieldDurationConstant    = "duration"
)

// ShellExecutor runs helper commands through a CommandRunner and reports their lifecycle.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	observer  CommandEventObserver
	formatter CommandMessageFormatter
}

// NewShellExecutor validates collaborators and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:   logger,
		runner:   runner,
		observer: noopCommandEventObserver{},
	}, nil
}

// WithObserver returns a copy of the executor that notifies observer about command events.
func (executor *ShellExecutor) WithObserver(observer CommandEventObserver) *ShellExecutor {
	duplicated := *executor
	if observer == nil {
		observer = noopCommandEventObserver{}
	}
	duplicated.observer = observer
	return &duplicated
}

// Execute runs command and returns CommandFailedError for non-zero exit codes and
// CommandExecutionError when the command could not run.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.observer.CommandStarted(command)
	executor.logger.Debug(
		executor.formatter.BuildStartedMessage(command),
		zap.String(logFieldCommandNameConstant, command.Name),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
	)

	startedAt := time.Now()
	result, runError := executor.runner.Run(executionContext, command)
	elapsed := time.Since(startedAt)

	if runError != nil {
		executor.observer.CommandExecutionFailed(command, runError)
		executor.logger.Debug(
			executor.formatter.BuildExecutionFailureMessage(command, runError),
			zap.String(logFieldCommandNameConstant, command.Name),
			zap.Duration(logFieldDurationConstant, elapsed),
			zap.Error(runError),
		)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, result)

	if result.ExitCode != 0 {
		executor.logger.Debug(
			executor.formatter.BuildFailureMessage(command, result),
			zap.String(logFieldCommandNameConstant, command.Name),
			zap.Int(logFieldExitCodeConstant, result.ExitCode),
			zap.Duration(logFieldDurationConstant, elapsed),
		)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: result}
	}

	executor.logger.Debug(
		executor.formatter.BuildSuccessMessage(command),
		zap.String(logFieldCommandNameConstant, command.Name),
		zap.Duration(logFieldDurationConstant, elapsed),
	)
	return result, nil
}
