package shell

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/shellkeeper/internal/execshell"
	"github.com/temirov/shellkeeper/internal/shellsession"
	"github.com/temirov/shellkeeper/internal/ui"
	"github.com/temirov/shellkeeper/internal/utils/flags"
)

const (
	formatFlagNameConstant           = "format"
	formatFlagUsageConstant          = "Output format."
	timeoutFlagNameConstant          = "timeout"
	timeoutFlagUsageConstant         = "Per-command timeout; zero uses the configured default"
	outputFormatTextConstant         = "text"
	outputFormatYAMLConstant         = "yaml"
	executorCreationTemplateConstant = "unable to construct command executor: %w"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider yields the shell section of the loaded configuration.
type ConfigurationProvider func() shellsession.Configuration

// ExitCodeRecorder receives the exit status the process should terminate with.
type ExitCodeRecorder func(code int)

// Dependencies carries what every shell subcommand needs to build sessions.
type Dependencies struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        ConfigurationProvider
	ExitCodeRecorder             ExitCodeRecorder
	SessionFactory               shellsession.SessionFactory
	Executor                     shellsession.CommandExecutor
}

func (dependencies Dependencies) logger() *zap.Logger {
	if dependencies.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := dependencies.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (dependencies Dependencies) humanReadable() bool {
	return dependencies.HumanReadableLoggingProvider != nil && dependencies.HumanReadableLoggingProvider()
}

func (dependencies Dependencies) configuration() shellsession.Configuration {
	if dependencies.ConfigurationProvider == nil {
		return shellsession.DefaultConfiguration()
	}
	return dependencies.ConfigurationProvider().Sanitize()
}

func (dependencies Dependencies) recordExitCode(code int) {
	if dependencies.ExitCodeRecorder != nil {
		dependencies.ExitCodeRecorder(code)
	}
}

func (dependencies Dependencies) executor() (shellsession.CommandExecutor, error) {
	if dependencies.Executor != nil {
		return dependencies.Executor, nil
	}
	logger := dependencies.logger()
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationTemplateConstant, executorError)
	}
	if dependencies.humanReadable() {
		return shellExecutor.WithObserver(ui.NewConsoleCommandEventLogger(logger)), nil
	}
	return shellExecutor, nil
}

// sessionOptions assembles session options with console observers when human-readable logging is enabled.
func (dependencies Dependencies) sessionOptions() (shellsession.Options, error) {
	executor, executorError := dependencies.executor()
	if executorError != nil {
		return shellsession.Options{}, executorError
	}
	logger := dependencies.logger()
	options := shellsession.Options{
		Configuration: dependencies.configuration(),
		Logger:        logger,
		Executor:      executor,
	}
	if dependencies.humanReadable() {
		options.Observer = ui.NewConsoleSessionEventLogger(logger)
	}
	return options, nil
}

func (dependencies Dependencies) manager() (*shellsession.Manager, error) {
	options, optionsError := dependencies.sessionOptions()
	if optionsError != nil {
		return nil, optionsError
	}
	return shellsession.NewManager(options).WithFactory(dependencies.SessionFactory), nil
}

func (dependencies Dependencies) registry() (*shellsession.Registry, error) {
	options, optionsError := dependencies.sessionOptions()
	if optionsError != nil {
		return nil, optionsError
	}
	return shellsession.NewRegistry(options).WithFactory(dependencies.SessionFactory), nil
}

func addOutputFormatFlag(command *cobra.Command) {
	flags.AddChoiceFlag(command.Flags(), formatFlagNameConstant, outputFormatTextConstant, []string{outputFormatTextConstant, outputFormatYAMLConstant}, formatFlagUsageConstant)
}

func readOutputFormat(command *cobra.Command) string {
	formatFlag := command.Flags().Lookup(formatFlagNameConstant)
	if formatFlag == nil {
		return outputFormatTextConstant
	}
	return formatFlag.Value.String()
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}

// interruptibleContext cancels when the process receives SIGINT or SIGTERM, so running commands resolve as interrupted.
func interruptibleContext(command *cobra.Command) (context.Context, context.CancelFunc) {
	parent := command.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
