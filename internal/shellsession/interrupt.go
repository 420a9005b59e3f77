package shellsession

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/temirov/shellkeeper/internal/execshell"
)

const (
	childLookupFailedMessageConstant      = "unable to enumerate shell child processes"
	childrenTerminatedMessageConstant     = "terminated shell child processes"
	childTerminationMessageConstant       = "terminating shell child process"
	childTerminationFailedMessageConstant = "unable to terminate shell child process"
	logFieldProcessIdentifierConstant     = "pid"
	logFieldParentIdentifierConstant      = "parent_pid"
	logFieldChildCountConstant            = "child_count"
	childEnumerationTimeoutConstant       = 2 * time.Second
)

// ProcessController enumerates and signals the shell's child processes.
type ProcessController interface {
	ChildProcessIDs(executionContext context.Context, parentProcessID int) ([]int, error)
	Terminate(processID int) error
}

// systemProcessController enumerates children through a platform helper command.
type systemProcessController struct {
	executor CommandExecutor
}

// NewSystemProcessController returns the ProcessController backed by pgrep on Unix and CIM on Windows.
func NewSystemProcessController(executor CommandExecutor) ProcessController {
	return systemProcessController{executor: executor}
}

func (controller systemProcessController) ChildProcessIDs(executionContext context.Context, parentProcessID int) ([]int, error) {
	result, executionError := controller.executor.Execute(executionContext, childLookupCommand(parentProcessID))
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) && failedError.Result.ExitCode == noMatchingProcessesExitCode {
			return nil, nil
		}
		return nil, executionError
	}
	return parseProcessIdentifiers(result.StandardOutput), nil
}

func (controller systemProcessController) Terminate(processID int) error {
	return terminateProcess(processID)
}

// parseProcessIdentifiers extracts positive integers, one per whitespace separated field.
func parseProcessIdentifiers(output string) []int {
	return lo.FilterMap(strings.Fields(output), func(field string, _ int) (int, bool) {
		processID, parseError := strconv.Atoi(field)
		return processID, parseError == nil && processID > 0
	})
}

// terminateChildren signals each direct child of parentProcessID individually and never the parent itself.
func terminateChildren(logger *zap.Logger, controller ProcessController, parentProcessID int) int {
	lookupContext, cancel := context.WithTimeout(context.Background(), childEnumerationTimeoutConstant)
	defer cancel()

	childProcessIDs, lookupError := controller.ChildProcessIDs(lookupContext, parentProcessID)
	if lookupError != nil {
		logger.Warn(childLookupFailedMessageConstant, zap.Int(logFieldParentIdentifierConstant, parentProcessID), zap.Error(lookupError))
		return 0
	}

	terminated := 0
	for _, childProcessID := range lo.Uniq(childProcessIDs) {
		if childProcessID == parentProcessID {
			continue
		}
		logger.Debug(childTerminationMessageConstant, zap.Int(logFieldProcessIdentifierConstant, childProcessID))
		if terminateError := controller.Terminate(childProcessID); terminateError != nil {
			logger.Warn(childTerminationFailedMessageConstant, zap.Int(logFieldProcessIdentifierConstant, childProcessID), zap.Error(terminateError))
			continue
		}
		terminated++
	}
	logger.Debug(childrenTerminatedMessageConstant, zap.Int(logFieldParentIdentifierConstant, parentProcessID), zap.Int(logFieldChildCountConstant, terminated))
	return terminated
}
