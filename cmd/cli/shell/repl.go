package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/temirov/shellkeeper/internal/shellsession"
)

const (
	replUseConstant                      = "repl"
	replShortDescriptionConstant         = "Read commands from standard input and run them on one persistent shell"
	replLongDescriptionConstant          = "repl runs each input line on the same shell session. Ctrl+C interrupts the running command and keeps the session. Lines starting with a colon are session directives: :pwd, :cd <dir>, :restart and :quit."
	replPromptTemplateConstant           = "%s $ "
	replDirectivePrefixConstant          = ":"
	replPwdDirectiveConstant             = ":pwd"
	replCdDirectiveConstant              = ":cd"
	replRestartDirectiveConstant         = ":restart"
	replQuitDirectiveConstant            = ":quit"
	replUnknownDirectiveTemplateConstant = "unknown directive %s\n"
	replDirectiveErrorTemplateConstant   = "%v\n"
	replMissingDirectoryConstant         = "usage: :cd <dir>\n"
	replLineNotRunTemplateConstant       = "%v: %q was not run, starting a new session\n"
	replMaximumLineLengthConstant        = 1024 * 1024
	replInitialBufferSizeConstant        = 64 * 1024
	replDirectiveFailureCodeConstant     = 1
)

// InterruptSource delivers interrupt requests and a function that stops delivery.
type InterruptSource func() (<-chan os.Signal, func())

// ReplCommandBuilder assembles the repl command.
type ReplCommandBuilder struct {
	Dependencies Dependencies
	Interrupts   InterruptSource
}

// Build constructs the repl command.
func (builder *ReplCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   replUseConstant,
		Short: replShortDescriptionConstant,
		Long:  replLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Duration(timeoutFlagNameConstant, 0, timeoutFlagUsageConstant)
	return command, nil
}

func (builder *ReplCommandBuilder) run(command *cobra.Command, arguments []string) error {
	timeout, _ := command.Flags().GetDuration(timeoutFlagNameConstant)

	manager, managerError := builder.Dependencies.manager()
	if managerError != nil {
		return managerError
	}
	defer func() {
		_ = manager.Close()
	}()

	var current atomic.Pointer[shellsession.Session]
	interrupts, stopInterrupts := builder.interruptSource()()
	defer stopInterrupts()
	stopForwarding := make(chan struct{})
	defer close(stopForwarding)
	go func() {
		for {
			select {
			case <-interrupts:
				if session := current.Load(); session != nil && session.State() == shellsession.StateBusy {
					session.KillChildren()
				}
			case <-stopForwarding:
				return
			}
		}
	}()

	input := command.InOrStdin()
	output := command.OutOrStdout()
	errorOutput := command.ErrOrStderr()
	interactive := isTerminal(input)

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, replInitialBufferSizeConstant), replMaximumLineLengthConstant)

	lastCode := 0
	for {
		session, instanceError := manager.Instance(command.Context())
		if instanceError != nil {
			return instanceError
		}
		current.Store(session)

		if interactive {
			fmt.Fprintf(output, replPromptTemplateConstant, filepath.Base(session.Pwd()))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, replDirectivePrefixConstant) {
			quit, directiveCode := builder.runDirective(command, manager, session, line)
			if quit {
				break
			}
			lastCode = directiveCode
			continue
		}

		printer := newResultPrinter(output, errorOutput)
		result, execError := session.Exec(command.Context(), line, shellsession.ExecOptions{Timeout: timeout, OnOutput: printer.callback()})
		if execError != nil {
			if errors.Is(execError, shellsession.ErrSessionDead) {
				fmt.Fprintf(errorOutput, replLineNotRunTemplateConstant, execError, line)
				continue
			}
			return execError
		}
		if printError := printer.finish(result); printError != nil {
			return printError
		}
		lastCode = result.Code

		if !session.Alive() {
			break
		}
	}

	builder.Dependencies.recordExitCode(lastCode)
	if scanError := scanner.Err(); scanError != nil && !errors.Is(scanError, io.EOF) {
		return scanError
	}
	return nil
}

// runDirective handles a colon-prefixed line and reports whether the loop should end.
func (builder *ReplCommandBuilder) runDirective(command *cobra.Command, manager *shellsession.Manager, session *shellsession.Session, line string) (bool, int) {
	fields := strings.Fields(line)
	errorOutput := command.ErrOrStderr()

	switch fields[0] {
	case replQuitDirectiveConstant:
		return true, 0
	case replPwdDirectiveConstant:
		fmt.Fprintln(command.OutOrStdout(), session.Pwd())
		return false, 0
	case replRestartDirectiveConstant:
		if restartError := manager.Restart(); restartError != nil {
			fmt.Fprintf(errorOutput, replDirectiveErrorTemplateConstant, restartError)
			return false, replDirectiveFailureCodeConstant
		}
		return false, 0
	case replCdDirectiveConstant:
		target := strings.TrimSpace(strings.TrimPrefix(line, replCdDirectiveConstant))
		if len(target) == 0 {
			fmt.Fprint(errorOutput, replMissingDirectoryConstant)
			return false, replDirectiveFailureCodeConstant
		}
		if changeError := session.SetCwd(command.Context(), target); changeError != nil {
			fmt.Fprintf(errorOutput, replDirectiveErrorTemplateConstant, changeError)
			return false, replDirectiveFailureCodeConstant
		}
		return false, 0
	default:
		fmt.Fprintf(errorOutput, replUnknownDirectiveTemplateConstant, fields[0])
		return false, replDirectiveFailureCodeConstant
	}
}

func (builder *ReplCommandBuilder) interruptSource() InterruptSource {
	if builder.Interrupts != nil {
		return builder.Interrupts
	}
	return func() (<-chan os.Signal, func()) {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		return signals, func() { signal.Stop(signals) }
	}
}

func isTerminal(input io.Reader) bool {
	file, isFile := input.(*os.File)
	return isFile && term.IsTerminal(int(file.Fd()))
}
