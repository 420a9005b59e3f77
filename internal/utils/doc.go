// Package utils exposes reusable helpers consumed by the CLI and the shell engine.
//
// It houses ConfigurationLoader, which layers embedded defaults, configuration
// files, and SHELLKEEPER_* environment variables through Viper, LoggerFactory,
// which builds zap loggers, and the writers used to stream command output.
package utils
