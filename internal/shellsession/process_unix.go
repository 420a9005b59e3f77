//go:build !windows

package shellsession

import (
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/temirov/shellkeeper/internal/execshell"
)

const (
	childLookupBinaryConstant      = "pgrep"
	childLookupParentFlagConstant  = "-P"
	childLookupDescriptionConstant = "list shell child processes"
	noMatchingProcessesExitCode    = 1
)

func childLookupCommand(parentProcessID int) execshell.ShellCommand {
	return execshell.ShellCommand{
		Name:        childLookupBinaryConstant,
		Description: childLookupDescriptionConstant,
		Details: execshell.CommandDetails{
			Arguments: []string{childLookupParentFlagConstant, strconv.Itoa(parentProcessID)},
			Timeout:   childEnumerationTimeoutConstant,
		},
	}
}

func terminateProcess(processID int) error {
	return unix.Kill(processID, unix.SIGTERM)
}

// detachProcessGroup keeps terminal interrupts aimed at the supervisor away from the shell.
func detachProcessGroup(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
