package shell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	shellcmd "github.com/temirov/shellkeeper/cmd/cli/shell"
	"github.com/temirov/shellkeeper/internal/shellsession"
)

func TestExecCommandRunsCommandsOnOneSession(testInstance *testing.T) {
	recorder := &recordedExitCode{}
	dependencies, _ := bashDependencies(testInstance, recorder)
	builder := &shellcmd.ExecCommandBuilder{Dependencies: dependencies}

	standardOutput, standardError, executionError := executeBuilder(testInstance, builder, nil,
		"export GREETING=hello", "echo $GREETING", "echo warn >&2; false",
	)
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "hello\n", standardOutput)
	require.Equal(testInstance, "warn\n", standardError)
	require.True(testInstance, recorder.recorded)
	require.Equal(testInstance, 1, recorder.code)
}

func TestExecCommandStopOnFailure(testInstance *testing.T) {
	recorder := &recordedExitCode{}
	dependencies, _ := bashDependencies(testInstance, recorder)
	builder := &shellcmd.ExecCommandBuilder{Dependencies: dependencies}

	standardOutput, _, executionError := executeBuilder(testInstance, builder, nil,
		"--stop-on-failure", "exit 4", "echo skipped",
	)
	require.NoError(testInstance, executionError)
	require.Empty(testInstance, standardOutput)
	require.Equal(testInstance, 4, recorder.code)
}

func TestExecCommandContinuesAfterShellExit(testInstance *testing.T) {
	recorder := &recordedExitCode{}
	dependencies, _ := bashDependencies(testInstance, recorder)
	builder := &shellcmd.ExecCommandBuilder{Dependencies: dependencies}

	standardOutput, _, executionError := executeBuilder(testInstance, builder, nil, "exit 4", "echo fresh")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "fresh\n", standardOutput)
	require.Zero(testInstance, recorder.code)
}

func TestExecCommandStreamsOutput(testInstance *testing.T) {
	recorder := &recordedExitCode{}
	dependencies, _ := bashDependencies(testInstance, recorder)
	builder := &shellcmd.ExecCommandBuilder{Dependencies: dependencies}

	standardOutput, _, executionError := executeBuilder(testInstance, builder, nil, "--stream", "printf a; sleep 0.3; printf 'b\\n'")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "ab\n", standardOutput)
}

func TestExecCommandYAMLReport(testInstance *testing.T) {
	recorder := &recordedExitCode{}
	dependencies, _ := bashDependencies(testInstance, recorder)
	builder := &shellcmd.ExecCommandBuilder{Dependencies: dependencies}

	standardOutput, _, executionError := executeBuilder(testInstance, builder, nil,
		"--format", "yaml", "--timeout", "200ms", "echo one", "sleep 3",
	)
	require.NoError(testInstance, executionError)

	var reports []shellcmd.CommandReport
	require.NoError(testInstance, yaml.Unmarshal([]byte(standardOutput), &reports))
	require.Len(testInstance, reports, 2)
	require.Equal(testInstance, "echo one", reports[0].Command)
	require.Equal(testInstance, shellsession.Result{Stdout: "one\n"}, reports[0].Result)
	require.True(testInstance, reports[1].Result.Interrupted)
	require.Equal(testInstance, shellsession.TerminatedExitCode, reports[1].Result.Code)
	require.Contains(testInstance, reports[1].Result.Stderr, "Command execution timed out")
	require.Equal(testInstance, shellsession.TerminatedExitCode, recorder.code)
}

func TestExecCommandValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		expectedError string
	}{
		{name: "missing_command", arguments: []string{}, expectedError: "at least one command is required"},
		{name: "unknown_format", arguments: []string{"--format", "json", "true"}, expectedError: `unsupported value "json" (expected text or yaml)`},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := &shellcmd.ExecCommandBuilder{}
			_, _, executionError := executeBuilder(testInstance, builder, nil, testCase.arguments...)
			require.ErrorContains(testInstance, executionError, testCase.expectedError)
		})
	}
}

func TestExecCommandReportsSessionFactoryFailure(testInstance *testing.T) {
	factoryError := errors.New("no shell available")
	builder := &shellcmd.ExecCommandBuilder{Dependencies: shellcmd.Dependencies{
		SessionFactory: func(context.Context, shellsession.Options) (*shellsession.Session, error) {
			return nil, factoryError
		},
	}}

	_, _, executionError := executeBuilder(testInstance, builder, nil, "echo hi")
	require.ErrorIs(testInstance, executionError, factoryError)
}
