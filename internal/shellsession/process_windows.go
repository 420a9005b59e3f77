//go:build windows

package shellsession

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/temirov/shellkeeper/internal/execshell"
)

const (
	childLookupBinaryConstant        = "powershell.exe"
	childLookupDescriptionConstant   = "list shell child processes"
	childLookupQueryTemplateConstant = "Get-CimInstance Win32_Process -Filter 'ParentProcessId=%d' | Select-Object -ExpandProperty ProcessId"
	noProfileFlagConstant            = "-NoProfile"
	nonInteractiveFlagConstant       = "-NonInteractive"
	powershellCommandFlagConstant    = "-Command"
	noMatchingProcessesExitCode      = -1
)

func childLookupCommand(parentProcessID int) execshell.ShellCommand {
	return execshell.ShellCommand{
		Name:        childLookupBinaryConstant,
		Description: childLookupDescriptionConstant,
		Details: execshell.CommandDetails{
			Arguments: []string{
				noProfileFlagConstant,
				nonInteractiveFlagConstant,
				powershellCommandFlagConstant,
				fmt.Sprintf(childLookupQueryTemplateConstant, parentProcessID),
			},
			Timeout: childEnumerationTimeoutConstant,
		},
	}
}

func terminateProcess(processID int) error {
	process, findError := os.FindProcess(processID)
	if findError != nil {
		return findError
	}
	return process.Kill()
}

// detachProcessGroup keeps console Ctrl+C aimed at the supervisor away from the shell.
func detachProcessGroup(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
