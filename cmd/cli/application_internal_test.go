package cli

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testConfigurationContentConstant = "common:\n  log_level: debug\nshell:\n  default_timeout: 5s\n  poll_interval: 20ms\n"
)

func runApplication(testInstance *testing.T, application *Application, arguments ...string) (string, string, error) {
	testInstance.Helper()
	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	application.rootCommand.SetArgs(arguments)
	application.rootCommand.SetOut(&standardOutput)
	application.rootCommand.SetErr(&standardError)
	executionError := application.Execute()
	return standardOutput.String(), standardError.String(), executionError
}

func isolateShellEnvironment(testInstance *testing.T) {
	testInstance.Helper()
	testInstance.Setenv("HOME", testInstance.TempDir())
	testInstance.Setenv("SHELLKEEPER_SHELL_SKIP_PROFILE", "true")
	testInstance.Setenv("SHELLKEEPER_SHELL_SIGNAL_DIRECTORY", testInstance.TempDir())
}

func requireBash(testInstance *testing.T) string {
	testInstance.Helper()
	bashPath, lookupError := exec.LookPath("bash")
	if lookupError != nil {
		testInstance.Skip("bash is not installed")
	}
	return bashPath
}

func TestApplicationConfigurationPrecedence(testInstance *testing.T) {
	configurationPath := filepath.Join(testInstance.TempDir(), "config.yaml")
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(testConfigurationContentConstant), 0o600))
	testInstance.Setenv("SHELLKEEPER_SHELL_POLL_INTERVAL", "40ms")
	workingDirectory := testInstance.TempDir()

	application := NewApplication()
	_, _, executionError := runApplication(testInstance, application,
		"--config", configurationPath,
		"--log-level", "warn",
		"--shell", "/opt/bash/bin/bash",
		"--workdir", workingDirectory,
	)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, "warn", application.configuration.Common.LogLevel)
	require.Equal(testInstance, "console", application.configuration.Common.LogFormat)
	require.Equal(testInstance, 5*time.Second, application.configuration.Shell.DefaultTimeout)
	require.Equal(testInstance, 40*time.Millisecond, application.configuration.Shell.PollInterval)
	require.Equal(testInstance, 100*time.Millisecond, application.configuration.Shell.OutputThrottle)
	require.Equal(testInstance, "/opt/bash/bin/bash", application.configuration.Shell.Binary)
	require.Equal(testInstance, workingDirectory, application.configuration.Shell.WorkingDirectory)
	require.Equal(testInstance, configurationPath, application.configurationMetadata.ConfigFileUsed)
}

func TestApplicationRejectsUnknownLogLevel(testInstance *testing.T) {
	application := NewApplication()
	_, _, executionError := runApplication(testInstance, application, "--log-level", "chatty")
	require.ErrorContains(testInstance, executionError, "unable to create logger")
}

func TestApplicationRegistersShellCommands(testInstance *testing.T) {
	application := NewApplication()
	registered := make([]string, 0)
	for _, command := range application.rootCommand.Commands() {
		registered = append(registered, command.Name())
	}
	require.Subset(testInstance, registered, []string{"exec", "repl", "batch", "resolve"})
}

func TestApplicationExecRecordsLastExitCode(testInstance *testing.T) {
	bashPath := requireBash(testInstance)
	isolateShellEnvironment(testInstance)
	workingDirectory := testInstance.TempDir()

	application := NewApplication()
	standardOutput, _, executionError := runApplication(testInstance, application,
		"--shell", bashPath,
		"--workdir", workingDirectory,
		"exec", "cd /", "pwd", "exit 3",
	)
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "/\n", standardOutput)
	require.Equal(testInstance, 3, application.ExitCode())
}

func TestApplicationResolvePrintsConfiguredShell(testInstance *testing.T) {
	bashPath := requireBash(testInstance)

	application := NewApplication()
	standardOutput, _, executionError := runApplication(testInstance, application, "--shell", bashPath, "resolve")
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, standardOutput, "path: "+bashPath+"\n")
	require.Contains(testInstance, standardOutput, "dialect: posix\n")
}

func TestSyncLoggerInstanceToleratesNilLogger(testInstance *testing.T) {
	application := &Application{}
	require.NoError(testInstance, application.syncLoggerInstance(nil))
}
