package shellsession

import (
	"errors"
	"fmt"
	"strings"
)

const (
	shellNotFoundMessageConstant           = "no compatible shell found"
	sessionDeadMessageConstant             = "shell session is dead"
	directoryNotFoundMessageConstant       = "directory does not exist"
	sessionFatalTemplateConstant           = "%s: %s: %v"
	shellNotFoundTemplateConstant          = "%s (searched: %s). %s"
	directoryNotFoundTemplateConstant      = "%w: %s"
	searchedLocationsSeparatorConstant     = ", "
	windowsRemediationMessageConstant      = "Install Git for Windows from https://git-scm.com/download/win or enable the Windows Subsystem for Linux, or set SHELLKEEPER_SHELL_BINARY to a bash executable."
	unixRemediationMessageConstant         = "Install bash with your system package manager, or set SHELLKEEPER_SHELL_BINARY to a bash or zsh executable."
	noLocationsSearchedPlaceholderConstant = "nothing"
)

// ErrShellNotFound indicates no usable shell binary could be located.
var ErrShellNotFound = errors.New(shellNotFoundMessageConstant)

// ErrSessionDead indicates the shell process is gone and the session cannot dispatch commands.
var ErrSessionDead = errors.New(sessionDeadMessageConstant)

// ErrDirectoryNotFound indicates SetCwd was given a path that does not exist.
var ErrDirectoryNotFound = errors.New(directoryNotFoundMessageConstant)

// ShellNotFoundError describes a failed resolution together with remediation guidance.
type ShellNotFoundError struct {
	Windows           bool
	SearchedLocations []string
}

// Error implements error.
func (failure *ShellNotFoundError) Error() string {
	searched := noLocationsSearchedPlaceholderConstant
	if len(failure.SearchedLocations) > 0 {
		searched = strings.Join(failure.SearchedLocations, searchedLocationsSeparatorConstant)
	}
	return fmt.Sprintf(shellNotFoundTemplateConstant, shellNotFoundMessageConstant, searched, failure.Remediation())
}

// Remediation returns the installation advice for the platform.
func (failure *ShellNotFoundError) Remediation() string {
	if failure.Windows {
		return windowsRemediationMessageConstant
	}
	return unixRemediationMessageConstant
}

// Is matches ErrShellNotFound.
func (failure *ShellNotFoundError) Is(target error) bool {
	return target == ErrShellNotFound
}

// SessionFatalError reports a failure that killed the session, such as a write to a closed shell.
type SessionFatalError struct {
	Operation string
	Cause     error
}

// Error implements error.
func (failure *SessionFatalError) Error() string {
	return fmt.Sprintf(sessionFatalTemplateConstant, sessionDeadMessageConstant, failure.Operation, failure.Cause)
}

// Unwrap exposes ErrSessionDead and the underlying cause.
func (failure *SessionFatalError) Unwrap() []error {
	if failure.Cause == nil {
		return []error{ErrSessionDead}
	}
	return []error{ErrSessionDead, failure.Cause}
}

func newDirectoryNotFoundError(path string) error {
	return fmt.Errorf(directoryNotFoundTemplateConstant, ErrDirectoryNotFound, path)
}
