package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/temirov/shellkeeper/internal/shellsession"
	"github.com/temirov/shellkeeper/internal/utils"
	pathutils "github.com/temirov/shellkeeper/internal/utils/path"
)

const (
	batchUseConstant                  = "batch <file.yaml>"
	batchShortDescriptionConstant     = "Run the steps of a YAML batch file"
	batchLongDescriptionConstant      = "batch runs a YAML list of steps in order. Each step names a command and optionally a timeout, a directory to change into first, and a root selecting which persistent shell runs it. Results are printed as YAML."
	batchMissingFileErrorConstant     = "batch file path required"
	batchReadErrorTemplateConstant    = "unable to read batch file %s: %w"
	batchParseErrorTemplateConstant   = "unable to parse batch file %s: %w"
	batchEmptyCommandTemplateConstant = "batch step %d has no command"
	batchStepFailureExitCodeConstant  = 1
)

// BatchStep is one entry of a batch file.
type BatchStep struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Cwd     string        `yaml:"cwd"`
	Root    string        `yaml:"root"`
}

// LoadBatchFile reads and validates a batch file.
func LoadBatchFile(path string) ([]BatchStep, error) {
	content, readError := os.ReadFile(path)
	if readError != nil {
		return nil, fmt.Errorf(batchReadErrorTemplateConstant, path, readError)
	}

	var steps []BatchStep
	if parseError := yaml.Unmarshal(content, &steps); parseError != nil {
		return nil, fmt.Errorf(batchParseErrorTemplateConstant, path, parseError)
	}
	for stepIndex := range steps {
		steps[stepIndex].Command = strings.TrimSpace(steps[stepIndex].Command)
		steps[stepIndex].Cwd = strings.TrimSpace(steps[stepIndex].Cwd)
		steps[stepIndex].Root = strings.TrimSpace(steps[stepIndex].Root)
		if len(steps[stepIndex].Command) == 0 {
			return nil, fmt.Errorf(batchEmptyCommandTemplateConstant, stepIndex+1)
		}
	}
	return steps, nil
}

// BatchCommandBuilder assembles the batch command.
type BatchCommandBuilder struct {
	Dependencies Dependencies
}

// Build constructs the batch command.
func (builder *BatchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   batchUseConstant,
		Short: batchShortDescriptionConstant,
		Long:  batchLongDescriptionConstant,
		RunE:  builder.run,
	}
	command.Flags().Bool(stopOnFailureFlagNameConstant, false, stopOnFailureFlagUsageConstant)
	return command, nil
}

func (builder *BatchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(batchMissingFileErrorConstant)
	}

	steps, loadError := LoadBatchFile(arguments[0])
	if loadError != nil {
		return loadError
	}
	stopOnFailure, _ := command.Flags().GetBool(stopOnFailureFlagNameConstant)

	registry, registryError := builder.Dependencies.registry()
	if registryError != nil {
		return registryError
	}
	defer func() {
		_ = registry.Close()
	}()

	defaultRoot, rootAvailable := utils.NewCommandContextAccessor().WorkingDirectory(command.Context())
	if !rootAvailable {
		defaultRoot = builder.Dependencies.configuration().WorkingDirectory
	}
	if len(defaultRoot) == 0 {
		currentDirectory, currentDirectoryError := os.Getwd()
		if currentDirectoryError != nil {
			return currentDirectoryError
		}
		defaultRoot = currentDirectory
	}

	executionContext, cancel := interruptibleContext(command)
	defer cancel()

	homeExpander := pathutils.NewHomeExpander()
	reports := make([]CommandReport, 0, len(steps))
	lastCode := 0
	for _, step := range steps {
		root := defaultRoot
		if len(step.Root) > 0 {
			root = homeExpander.Expand(step.Root)
		}

		report, stepError := builder.runStep(executionContext, registry, root, step)
		if stepError != nil {
			return stepError
		}
		reports = append(reports, report)
		lastCode = report.Result.Code

		if executionContext.Err() != nil || (stopOnFailure && !report.Result.Succeeded()) {
			break
		}
	}

	builder.Dependencies.recordExitCode(lastCode)
	return writeYAMLReports(command.OutOrStdout(), reports)
}

// runStep runs one step; a directory that cannot be entered fails the step, a dead shell fails the batch.
func (builder *BatchCommandBuilder) runStep(executionContext context.Context, registry *shellsession.Registry, root string, step BatchStep) (CommandReport, error) {
	session, instanceError := registry.Instance(executionContext, root)
	if instanceError != nil {
		return CommandReport{}, instanceError
	}

	if len(step.Cwd) > 0 {
		if changeError := session.SetCwd(executionContext, step.Cwd); changeError != nil {
			if errors.Is(changeError, shellsession.ErrSessionDead) {
				return CommandReport{}, changeError
			}
			return CommandReport{
				Command:   step.Command,
				Directory: session.Pwd(),
				Result:    shellsession.Result{Stderr: changeError.Error(), Code: batchStepFailureExitCodeConstant},
			}, nil
		}
	}

	result, execError := session.Exec(executionContext, step.Command, shellsession.ExecOptions{Timeout: step.Timeout})
	if execError != nil {
		return CommandReport{}, execError
	}
	return CommandReport{Command: step.Command, Directory: session.Pwd(), Result: result}, nil
}
