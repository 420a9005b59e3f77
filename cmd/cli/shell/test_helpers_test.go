package shell_test

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	shellcmd "github.com/temirov/shellkeeper/cmd/cli/shell"
	"github.com/temirov/shellkeeper/internal/shellsession"
)

type commandBuilder interface {
	Build() (*cobra.Command, error)
}

type recordedExitCode struct {
	code     int
	recorded bool
}

func (recorder *recordedExitCode) record(code int) {
	recorder.code = code
	recorder.recorded = true
}

func requireBash(testInstance *testing.T) string {
	testInstance.Helper()
	bashPath, lookupError := exec.LookPath("bash")
	if lookupError != nil {
		testInstance.Skip("bash is not installed")
	}
	return bashPath
}

func bashDependencies(testInstance *testing.T, recorder *recordedExitCode) (shellcmd.Dependencies, string) {
	testInstance.Helper()
	bashPath := requireBash(testInstance)
	testInstance.Setenv("HOME", testInstance.TempDir())

	configuration := shellsession.DefaultConfiguration()
	configuration.Binary = bashPath
	configuration.SignalDirectory = testInstance.TempDir()
	configuration.WorkingDirectory = testInstance.TempDir()
	configuration.SkipProfile = true

	return shellcmd.Dependencies{
		LoggerProvider:        zap.NewNop,
		ConfigurationProvider: func() shellsession.Configuration { return configuration },
		ExitCodeRecorder:      recorder.record,
	}, configuration.WorkingDirectory
}

func executeBuilder(testInstance *testing.T, builder commandBuilder, input io.Reader, arguments ...string) (string, string, error) {
	testInstance.Helper()
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	command.SetArgs(arguments)
	command.SetOut(&standardOutput)
	command.SetErr(&standardError)
	if input != nil {
		command.SetIn(input)
	}
	command.SetContext(context.Background())

	executionError := command.Execute()
	return standardOutput.String(), standardError.String(), executionError
}
