package execshell_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellkeeper/internal/execshell"
)

const (
	testShellBinaryConstant         = "sh"
	testShellCommandFlagConstant    = "-c"
	testEnvironmentVariableConstant = "SHELLKEEPER_RUNNER_PROBE"
	testEnvironmentValueConstant    = "probe-value"
)

func requireShell(testInstance *testing.T) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath(testShellBinaryConstant); lookupError != nil {
		testInstance.Skip("sh is not available")
	}
}

func TestOSCommandRunnerCapturesOutputAndExitCode(testInstance *testing.T) {
	requireShell(testInstance)
	runner := execshell.NewOSCommandRunner()

	testCases := []struct {
		name             string
		script           string
		standardInput    []byte
		environment      map[string]string
		expectedOutput   string
		expectedError    string
		expectedExitCode int
	}{
		{
			name:           "standard_output",
			script:         "printf hello",
			expectedOutput: "hello",
		},
		{
			name:             "exit_code_and_standard_error",
			script:           "printf oops >&2; exit 3",
			expectedError:    "oops",
			expectedExitCode: 3,
		},
		{
			name:           "standard_input",
			script:         "cat",
			standardInput:  []byte("piped"),
			expectedOutput: "piped",
		},
		{
			name:           "environment_variables",
			script:         "printf \"$" + testEnvironmentVariableConstant + "\"",
			environment:    map[string]string{testEnvironmentVariableConstant: testEnvironmentValueConstant},
			expectedOutput: testEnvironmentValueConstant,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			result, runError := runner.Run(context.Background(), execshell.ShellCommand{
				Name: testShellBinaryConstant,
				Details: execshell.CommandDetails{
					Arguments:            []string{testShellCommandFlagConstant, testCase.script},
					StandardInput:        testCase.standardInput,
					EnvironmentVariables: testCase.environment,
				},
			})
			require.NoError(testInstance, runError)
			require.Equal(testInstance, testCase.expectedOutput, result.StandardOutput)
			require.Equal(testInstance, testCase.expectedError, result.StandardError)
			require.Equal(testInstance, testCase.expectedExitCode, result.ExitCode)
		})
	}
}

func TestOSCommandRunnerHonorsTimeout(testInstance *testing.T) {
	requireShell(testInstance)
	runner := execshell.NewOSCommandRunner()

	startedAt := time.Now()
	_, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: testShellBinaryConstant,
		Details: execshell.CommandDetails{
			Arguments: []string{testShellCommandFlagConstant, "sleep 5"},
			Timeout:   100 * time.Millisecond,
		},
	})
	require.ErrorIs(testInstance, runError, execshell.ErrCommandTimedOut)
	require.Less(testInstance, time.Since(startedAt), 4*time.Second)
}

func TestOSCommandRunnerReportsMissingExecutable(testInstance *testing.T) {
	runner := execshell.NewOSCommandRunner()
	_, runError := runner.Run(context.Background(), execshell.ShellCommand{Name: "shellkeeper-definitely-missing-binary"})
	require.Error(testInstance, runError)
}
