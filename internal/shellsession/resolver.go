package shellsession

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/shellkeeper/internal/execshell"
)

const (
	// ShellBinaryEnvironmentVariable overrides shell discovery when it names an existing file.
	ShellBinaryEnvironmentVariable = "SHELLKEEPER_SHELL_BINARY"

	windowsOperatingSystemConstant   = "windows"
	shellEnvironmentVariableConstant = "SHELL"
	pathEnvironmentVariableConstant  = "PATH"
	bashNameConstant                 = "bash"
	zshNameConstant                  = "zsh"
	windowsExecutableSuffixConstant  = ".exe"
	windowsListSeparatorConstant     = ";"
	unixListSeparatorConstant        = ":"
	wslLauncherBinaryConstant        = "wsl.exe"
	wslProbeScriptConstant           = "exit 0"
	wslProbeDescriptionConstant      = "probe Windows Subsystem for Linux"
	wslProbeLocationConstant         = "wsl.exe -e bash"
	system32FragmentConstant         = `\windows\system32\`
	gitBashRelativePathConstant      = `Git\bin\bash.exe`
	scoopGitBashRelativePathConstant = `scoop\apps\git\current\bin\bash.exe`
	localProgramsDirectoryConstant   = "Programs"
	programFilesVariableConstant     = "ProgramFiles"
	programFilesX86VariableConstant  = "ProgramFiles(x86)"
	localAppDataVariableConstant     = "LocalAppData"
	userProfileVariableConstant      = "UserProfile"
	resolvedShellMessageConstant     = "resolved shell binary"
	rejectedShellMessageConstant     = "ignoring incompatible shell"
	wslProbeFailedMessageConstant    = "wsl probe failed"
	logFieldShellPathConstant        = "shell_path"
	logFieldDialectConstant          = "dialect"
	logFieldResolutionStepConstant   = "resolution_step"
	resolutionStepOverrideConstant   = "override"
	resolutionStepShellConstant      = "shell_variable"
	resolutionStepWellKnownConstant  = "well_known_location"
	resolutionStepSearchPathConstant = "search_path"
	resolutionStepWSLConstant        = "wsl_probe"
)

// ShellBinary is the outcome of shell resolution.
type ShellBinary struct {
	Path      string   `yaml:"path"`
	Arguments []string `yaml:"arguments"`
	Dialect   Dialect  `yaml:"dialect"`
}

// CommandExecutor runs short-lived helper commands such as syntax checks and probes.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// ShellResolver locates the shell a session should run.
type ShellResolver interface {
	Resolve(executionContext context.Context) (ShellBinary, error)
}

// EnvironmentLookup reads an environment variable.
type EnvironmentLookup func(name string) (string, bool)

// FileProbe reports whether path names an existing regular file.
type FileProbe func(path string) bool

// ResolverOptions customizes the host facts a Resolver consults.
type ResolverOptions struct {
	// Override is checked before the environment override.
	Override          string
	OperatingSystem   string
	LookupEnvironment EnvironmentLookup
	FileExists        FileProbe
	ProbeTimeout      time.Duration
}

// Resolver picks a shell binary, its invocation arguments and dialect.
type Resolver struct {
	logger            *zap.Logger
	executor          CommandExecutor
	override          string
	operatingSystem   string
	lookupEnvironment EnvironmentLookup
	fileExists        FileProbe
	probeTimeout      time.Duration
}

// NewResolver constructs a Resolver. Zero-valued options fall back to the running host.
func NewResolver(logger *zap.Logger, executor CommandExecutor, options ResolverOptions) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := &Resolver{
		logger:            logger,
		executor:          executor,
		override:          strings.TrimSpace(options.Override),
		operatingSystem:   options.OperatingSystem,
		lookupEnvironment: options.LookupEnvironment,
		fileExists:        options.FileExists,
		probeTimeout:      positiveOrDefault(options.ProbeTimeout, defaultProbeTimeoutConstant),
	}
	if len(resolver.operatingSystem) == 0 {
		resolver.operatingSystem = runtime.GOOS
	}
	if resolver.lookupEnvironment == nil {
		resolver.lookupEnvironment = os.LookupEnv
	}
	if resolver.fileExists == nil {
		resolver.fileExists = regularFileExists
	}
	return resolver
}

// Resolve walks the override, $SHELL, well-known Windows locations, PATH and finally WSL.
func (resolver *Resolver) Resolve(executionContext context.Context) (ShellBinary, error) {
	searchedLocations := make([]string, 0)

	overrideCandidates := []string{resolver.override, resolver.environmentValue(ShellBinaryEnvironmentVariable)}
	for _, candidate := range overrideCandidates {
		if len(candidate) == 0 {
			continue
		}
		searchedLocations = append(searchedLocations, candidate)
		if resolver.fileExists(candidate) {
			return resolver.resolved(candidate, resolver.hostDialect(), resolutionStepOverrideConstant), nil
		}
	}

	if shellValue := resolver.environmentValue(shellEnvironmentVariableConstant); len(shellValue) > 0 {
		searchedLocations = append(searchedLocations, shellValue)
		switch {
		case !resolver.compatibleShell(shellValue):
			resolver.logger.Debug(rejectedShellMessageConstant, zap.String(logFieldShellPathConstant, shellValue))
		case resolver.fileExists(shellValue):
			return resolver.resolved(shellValue, resolver.hostDialect(), resolutionStepShellConstant), nil
		}
	}

	if resolver.windows() {
		for _, candidate := range resolver.wellKnownWindowsLocations() {
			searchedLocations = append(searchedLocations, candidate)
			if resolver.fileExists(candidate) {
				return resolver.resolved(candidate, DialectMSYS, resolutionStepWellKnownConstant), nil
			}
		}
	}

	for _, candidate := range resolver.searchPathCandidates() {
		if resolver.fileExists(candidate) {
			return resolver.resolved(candidate, resolver.hostDialect(), resolutionStepSearchPathConstant), nil
		}
	}
	searchedLocations = append(searchedLocations, pathEnvironmentVariableConstant)

	if resolver.windows() {
		searchedLocations = append(searchedLocations, wslProbeLocationConstant)
		if resolver.probeWSL(executionContext) {
			return resolver.resolved(wslLauncherBinaryConstant, DialectWSL, resolutionStepWSLConstant), nil
		}
	}

	return ShellBinary{}, &ShellNotFoundError{Windows: resolver.windows(), SearchedLocations: searchedLocations}
}

func (resolver *Resolver) resolved(path string, dialect Dialect, step string) ShellBinary {
	resolver.logger.Debug(
		resolvedShellMessageConstant,
		zap.String(logFieldShellPathConstant, path),
		zap.String(logFieldDialectConstant, dialect.String()),
		zap.String(logFieldResolutionStepConstant, step),
	)
	return ShellBinary{Path: path, Arguments: dialect.InvocationArguments(), Dialect: dialect}
}

func (resolver *Resolver) windows() bool {
	return resolver.operatingSystem == windowsOperatingSystemConstant
}

func (resolver *Resolver) hostDialect() Dialect {
	if resolver.windows() {
		return DialectMSYS
	}
	return DialectPOSIX
}

func (resolver *Resolver) environmentValue(name string) string {
	value, present := resolver.lookupEnvironment(name)
	if !present {
		return ""
	}
	return strings.TrimSpace(value)
}

func (resolver *Resolver) compatibleShell(shellPath string) bool {
	baseName := strings.ToLower(resolver.baseName(shellPath))
	baseName = strings.TrimSuffix(baseName, windowsExecutableSuffixConstant)
	if resolver.windows() {
		return baseName == bashNameConstant
	}
	return baseName == bashNameConstant || baseName == zshNameConstant
}

func (resolver *Resolver) baseName(path string) string {
	if resolver.windows() {
		path = strings.ReplaceAll(path, windowsPathSeparatorConstant, shellPathSeparatorConstant)
	}
	segments := strings.Split(path, shellPathSeparatorConstant)
	return segments[len(segments)-1]
}

func (resolver *Resolver) wellKnownWindowsLocations() []string {
	locations := make([]string, 0, 4)
	for _, variableName := range []string{programFilesVariableConstant, programFilesX86VariableConstant} {
		if directory := resolver.environmentValue(variableName); len(directory) > 0 {
			locations = append(locations, resolver.joinHostPath(directory, gitBashRelativePathConstant))
		}
	}
	if directory := resolver.environmentValue(localAppDataVariableConstant); len(directory) > 0 {
		locations = append(locations, resolver.joinHostPath(directory, localProgramsDirectoryConstant, gitBashRelativePathConstant))
	}
	if directory := resolver.environmentValue(userProfileVariableConstant); len(directory) > 0 {
		locations = append(locations, resolver.joinHostPath(directory, scoopGitBashRelativePathConstant))
	}
	return locations
}

func (resolver *Resolver) searchPathCandidates() []string {
	separator := unixListSeparatorConstant
	executableName := bashNameConstant
	if resolver.windows() {
		separator = windowsListSeparatorConstant
		executableName = bashNameConstant + windowsExecutableSuffixConstant
	}

	candidates := make([]string, 0)
	for _, directory := range strings.Split(resolver.environmentValue(pathEnvironmentVariableConstant), separator) {
		trimmedDirectory := strings.TrimSpace(directory)
		if len(trimmedDirectory) == 0 {
			continue
		}
		candidate := resolver.joinHostPath(trimmedDirectory, executableName)
		if resolver.windows() && strings.Contains(strings.ToLower(candidate), system32FragmentConstant) {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

func (resolver *Resolver) joinHostPath(directory string, elements ...string) string {
	if !resolver.windows() {
		return filepath.Join(append([]string{directory}, elements...)...)
	}
	joined := strings.TrimRight(directory, `\/`)
	for _, element := range elements {
		joined += windowsPathSeparatorConstant + element
	}
	return joined
}

func (resolver *Resolver) probeWSL(executionContext context.Context) bool {
	if resolver.executor == nil {
		return false
	}
	_, probeError := resolver.executor.Execute(executionContext, execshell.ShellCommand{
		Name:        wslLauncherBinaryConstant,
		Description: wslProbeDescriptionConstant,
		Details: execshell.CommandDetails{
			Arguments: []string{wslExecuteFlagConstant, wslBashBinaryConstant, commandFlagConstant, wslProbeScriptConstant},
			Timeout:   resolver.probeTimeout,
		},
	})
	if probeError != nil {
		resolver.logger.Debug(wslProbeFailedMessageConstant, zap.Error(probeError))
		return false
	}
	return true
}

func regularFileExists(path string) bool {
	fileInfo, statError := os.Stat(path)
	if statError != nil {
		return false
	}
	return fileInfo.Mode().IsRegular()
}
