package docs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	shellcmd "github.com/temirov/shellkeeper/cmd/cli/shell"
)

const (
	readmeFileNameConstant           = "README.md"
	yamlFenceStartConstant           = "```yaml"
	yamlFenceEndConstant             = "```"
	configHeaderMarkerConstant       = "# config.yaml"
	batchHeaderMarkerConstant        = "# batch.yaml"
	parentDirectoryReferenceConstant = ".."
	missingHeaderMessageConstant     = "README example missing header marker"
	missingStartFenceMessageConstant = "README example missing yaml fence start"
	missingEndFenceMessageConstant   = "README example missing yaml fence end"
)

var expectedShellKeys = []string{
	"binary",
	"default_timeout",
	"poll_interval",
	"output_throttle",
	"syntax_check_timeout",
	"probe_timeout",
	"signal_directory",
	"working_directory",
	"skip_profile",
}

func readmeSnippet(testInstance *testing.T, headerMarker string) string {
	testInstance.Helper()
	workingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)

	contentBytes, readError := os.ReadFile(filepath.Join(workingDirectory, parentDirectoryReferenceConstant, readmeFileNameConstant))
	require.NoError(testInstance, readError)
	contentText := string(contentBytes)

	headerIndex := strings.Index(contentText, headerMarker)
	require.NotEqual(testInstance, -1, headerIndex, missingHeaderMessageConstant)

	fenceStartIndex := strings.LastIndex(contentText[:headerIndex], yamlFenceStartConstant)
	require.NotEqual(testInstance, -1, fenceStartIndex, missingStartFenceMessageConstant)

	fenceEndRelativeIndex := strings.Index(contentText[headerIndex:], yamlFenceEndConstant)
	require.NotEqual(testInstance, -1, fenceEndRelativeIndex, missingEndFenceMessageConstant)

	return strings.TrimSpace(contentText[fenceStartIndex+len(yamlFenceStartConstant) : headerIndex+fenceEndRelativeIndex])
}

func TestReadmeConfigurationListsEveryShellKey(testInstance *testing.T) {
	var configuration struct {
		Common map[string]any `yaml:"common"`
		Shell  map[string]any `yaml:"shell"`
	}
	require.NoError(testInstance, yaml.Unmarshal([]byte(readmeSnippet(testInstance, configHeaderMarkerConstant)), &configuration))

	require.Contains(testInstance, configuration.Common, "log_level")
	require.Contains(testInstance, configuration.Common, "log_format")
	for _, key := range expectedShellKeys {
		require.Containsf(testInstance, configuration.Shell, key, "README configuration missing shell.%s", key)
	}
	require.Len(testInstance, configuration.Shell, len(expectedShellKeys))
}

func TestReadmeBatchExampleLoads(testInstance *testing.T) {
	batchPath := filepath.Join(testInstance.TempDir(), "batch.yaml")
	require.NoError(testInstance, os.WriteFile(batchPath, []byte(readmeSnippet(testInstance, batchHeaderMarkerConstant)), 0o600))

	steps, loadError := shellcmd.LoadBatchFile(batchPath)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, steps, 3)
	require.Equal(testInstance, "services/api", steps[1].Cwd)
	require.Equal(testInstance, "~/projects/other", steps[2].Root)
}
