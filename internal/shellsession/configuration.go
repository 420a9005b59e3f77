package shellsession

import (
	"strings"
	"time"

	pathutils "github.com/temirov/shellkeeper/internal/utils/path"
)

var shellConfigurationHomeDirectoryExpander = pathutils.NewHomeExpander()

const (
	configurationBinaryKeyConstant             = "binary"
	configurationDefaultTimeoutKeyConstant     = "default_timeout"
	configurationPollIntervalKeyConstant       = "poll_interval"
	configurationOutputThrottleKeyConstant     = "output_throttle"
	configurationSyntaxCheckTimeoutKeyConstant = "syntax_check_timeout"
	configurationProbeTimeoutKeyConstant       = "probe_timeout"
	configurationSignalDirectoryKeyConstant    = "signal_directory"
	configurationWorkingDirectoryKeyConstant   = "working_directory"
	configurationSkipProfileKeyConstant        = "skip_profile"
	configurationKeySeparatorConstant          = "."
	defaultCommandTimeoutConstant              = 30 * time.Minute
	defaultPollIntervalConstant                = 10 * time.Millisecond
	defaultOutputThrottleConstant              = 100 * time.Millisecond
	defaultSyntaxCheckTimeoutConstant          = time.Second
	defaultProbeTimeoutConstant                = 3 * time.Second
)

// Configuration captures tunables for shell sessions.
type Configuration struct {
	Binary             string        `mapstructure:"binary"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	OutputThrottle     time.Duration `mapstructure:"output_throttle"`
	SyntaxCheckTimeout time.Duration `mapstructure:"syntax_check_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	SignalDirectory    string        `mapstructure:"signal_directory"`
	WorkingDirectory   string        `mapstructure:"working_directory"`
	SkipProfile        bool          `mapstructure:"skip_profile"`
}

// DefaultConfiguration provides baseline session tunables.
func DefaultConfiguration() Configuration {
	return Configuration{
		Binary:             "",
		DefaultTimeout:     defaultCommandTimeoutConstant,
		PollInterval:       defaultPollIntervalConstant,
		OutputThrottle:     defaultOutputThrottleConstant,
		SyntaxCheckTimeout: defaultSyntaxCheckTimeoutConstant,
		ProbeTimeout:       defaultProbeTimeoutConstant,
		SignalDirectory:    "",
		WorkingDirectory:   "",
		SkipProfile:        false,
	}
}

// DefaultConfigurationValues produces Viper defaults for shell configuration under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	prefix := rootKey + configurationKeySeparatorConstant
	return map[string]any{
		prefix + configurationBinaryKeyConstant:             defaults.Binary,
		prefix + configurationDefaultTimeoutKeyConstant:     defaults.DefaultTimeout.String(),
		prefix + configurationPollIntervalKeyConstant:       defaults.PollInterval.String(),
		prefix + configurationOutputThrottleKeyConstant:     defaults.OutputThrottle.String(),
		prefix + configurationSyntaxCheckTimeoutKeyConstant: defaults.SyntaxCheckTimeout.String(),
		prefix + configurationProbeTimeoutKeyConstant:       defaults.ProbeTimeout.String(),
		prefix + configurationSignalDirectoryKeyConstant:    defaults.SignalDirectory,
		prefix + configurationWorkingDirectoryKeyConstant:   defaults.WorkingDirectory,
		prefix + configurationSkipProfileKeyConstant:        defaults.SkipProfile,
	}
}

// Sanitize trims paths, expands home shortcuts and replaces non-positive durations with defaults.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.Binary = shellConfigurationHomeDirectoryExpander.Expand(strings.TrimSpace(configuration.Binary))
	sanitized.SignalDirectory = shellConfigurationHomeDirectoryExpander.Expand(strings.TrimSpace(configuration.SignalDirectory))
	sanitized.WorkingDirectory = shellConfigurationHomeDirectoryExpander.Expand(strings.TrimSpace(configuration.WorkingDirectory))

	sanitized.DefaultTimeout = positiveOrDefault(configuration.DefaultTimeout, defaults.DefaultTimeout)
	sanitized.PollInterval = positiveOrDefault(configuration.PollInterval, defaults.PollInterval)
	sanitized.OutputThrottle = positiveOrDefault(configuration.OutputThrottle, defaults.OutputThrottle)
	sanitized.SyntaxCheckTimeout = positiveOrDefault(configuration.SyntaxCheckTimeout, defaults.SyntaxCheckTimeout)
	sanitized.ProbeTimeout = positiveOrDefault(configuration.ProbeTimeout, defaults.ProbeTimeout)

	return sanitized
}

func positiveOrDefault(candidate time.Duration, fallback time.Duration) time.Duration {
	if candidate <= 0 {
		return fallback
	}
	return candidate
}
