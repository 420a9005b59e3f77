package shellsession_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellkeeper/internal/shellsession"
)

const testShellConfigurationRootKeyConstant = "shell"

func TestDefaultConfigurationValues(testInstance *testing.T) {
	values := shellsession.DefaultConfigurationValues(testShellConfigurationRootKeyConstant)

	require.Equal(testInstance, "30m0s", values["shell.default_timeout"])
	require.Equal(testInstance, "10ms", values["shell.poll_interval"])
	require.Equal(testInstance, "100ms", values["shell.output_throttle"])
	require.Equal(testInstance, "1s", values["shell.syntax_check_timeout"])
	require.Equal(testInstance, "3s", values["shell.probe_timeout"])
	require.Equal(testInstance, "", values["shell.binary"])
	require.Equal(testInstance, false, values["shell.skip_profile"])
	require.Len(testInstance, values, 9)
}

func TestConfigurationSanitize(testInstance *testing.T) {
	homeDirectory, homeError := os.UserHomeDir()
	require.NoError(testInstance, homeError)

	testCases := []struct {
		name     string
		input    shellsession.Configuration
		validate func(testInstance *testing.T, sanitized shellsession.Configuration)
	}{
		{
			name:  "zero_durations_use_defaults",
			input: shellsession.Configuration{},
			validate: func(testInstance *testing.T, sanitized shellsession.Configuration) {
				require.Equal(testInstance, shellsession.DefaultConfiguration(), sanitized)
			},
		},
		{
			name: "explicit_values_survive",
			input: shellsession.Configuration{
				DefaultTimeout: 5 * time.Second,
				PollInterval:   25 * time.Millisecond,
				OutputThrottle: 250 * time.Millisecond,
			},
			validate: func(testInstance *testing.T, sanitized shellsession.Configuration) {
				require.Equal(testInstance, 5*time.Second, sanitized.DefaultTimeout)
				require.Equal(testInstance, 25*time.Millisecond, sanitized.PollInterval)
				require.Equal(testInstance, 250*time.Millisecond, sanitized.OutputThrottle)
				require.Equal(testInstance, time.Second, sanitized.SyntaxCheckTimeout)
			},
		},
		{
			name: "negative_durations_use_defaults",
			input: shellsession.Configuration{
				DefaultTimeout: -time.Second,
				ProbeTimeout:   -time.Second,
			},
			validate: func(testInstance *testing.T, sanitized shellsession.Configuration) {
				require.Equal(testInstance, 30*time.Minute, sanitized.DefaultTimeout)
				require.Equal(testInstance, 3*time.Second, sanitized.ProbeTimeout)
			},
		},
		{
			name: "paths_are_trimmed_and_expanded",
			input: shellsession.Configuration{
				Binary:          "  /bin/bash  ",
				SignalDirectory: "~/signals",
			},
			validate: func(testInstance *testing.T, sanitized shellsession.Configuration) {
				require.Equal(testInstance, "/bin/bash", sanitized.Binary)
				require.Equal(testInstance, filepath.Join(homeDirectory, "signals"), sanitized.SignalDirectory)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testCase.validate(testInstance, testCase.input.Sanitize())
		})
	}
}
