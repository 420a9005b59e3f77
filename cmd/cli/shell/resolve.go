package shell

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/temirov/shellkeeper/internal/shellsession"
	"github.com/temirov/shellkeeper/internal/utils"
)

const (
	resolveUseConstant                   = "resolve"
	resolveShortDescriptionConstant      = "Print the shell binary sessions would use"
	resolveLongDescriptionConstant       = "resolve runs shell discovery without starting a session and prints the binary, its arguments and its dialect."
	resolveTextTemplateConstant          = "path: %s\narguments: %s\ndialect: %s\n"
	resolveArgumentSeparatorConstant     = " "
	resolveConfigurationTemplateConstant = "config: %s\n"
)

// ResolveCommandBuilder assembles the resolve command.
type ResolveCommandBuilder struct {
	Dependencies Dependencies
	Resolver     shellsession.ShellResolver
}

// Build constructs the resolve command.
func (builder *ResolveCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   resolveUseConstant,
		Short: resolveShortDescriptionConstant,
		Long:  resolveLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	addOutputFormatFlag(command)
	return command, nil
}

func (builder *ResolveCommandBuilder) run(command *cobra.Command, arguments []string) error {
	format := readOutputFormat(command)

	resolver := builder.Resolver
	if resolver == nil {
		executor, executorError := builder.Dependencies.executor()
		if executorError != nil {
			return executorError
		}
		configuration := builder.Dependencies.configuration()
		resolver = shellsession.NewResolver(builder.Dependencies.logger(), executor, shellsession.ResolverOptions{
			Override:     configuration.Binary,
			ProbeTimeout: configuration.ProbeTimeout,
		})
	}

	binary, resolveError := resolver.Resolve(command.Context())
	if resolveError != nil {
		return resolveError
	}

	output := utils.NewFlushingWriter(command.OutOrStdout())
	if format == outputFormatYAMLConstant {
		encoder := yaml.NewEncoder(output)
		encoder.SetIndent(yamlIndentConstant)
		if encodeError := encoder.Encode(binary); encodeError != nil {
			return encodeError
		}
		return encoder.Close()
	}

	if _, writeError := fmt.Fprintf(output, resolveTextTemplateConstant, binary.Path, strings.Join(binary.Arguments, resolveArgumentSeparatorConstant), binary.Dialect); writeError != nil {
		return writeError
	}
	if configurationFile, available := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context()); available && len(configurationFile) > 0 {
		_, writeError := fmt.Fprintf(output, resolveConfigurationTemplateConstant, configurationFile)
		return writeError
	}
	return nil
}
