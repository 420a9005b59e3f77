package execshell

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	commandTimedOutMessageConstant            = "command timed out"
	commandFailedTemplateConstant             = "%s exited with code %d"
	commandFailedWithErrorTemplateConstant    = "%s exited with code %d: %s"
	commandExecutionFailedTemplateConstant    = "%s could not run: %v"
)

// ErrLoggerNotConfigured indicates a ShellExecutor was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates a ShellExecutor was built without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// ErrCommandTimedOut indicates a command exceeded CommandDetails.Timeout.
var ErrCommandTimedOut = errors.New(commandTimedOutMessageConstant)

// CommandDetails describes how a helper process is invoked.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	Timeout              time.Duration
}

// ShellCommand names an executable together with its invocation details.
// Description is an optional human label used in log messages.
type ShellCommand struct {
	Name        string
	Description string
	Details     CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes a ShellCommand to completion.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that ran but exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error implements error.
func (failure CommandFailedError) Error() string {
	label := CommandMessageFormatter{}.formatCommandLabel(failure.Command)
	standardError := CommandMessageFormatter{}.trimmedStandardError(failure.Result.StandardError)
	if len(standardError) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, label, failure.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithErrorTemplateConstant, label, failure.Result.ExitCode, standardError)
}

// CommandExecutionError reports a command that could not be run at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error implements error.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, CommandMessageFormatter{}.formatCommandLabel(failure.Command), failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}
