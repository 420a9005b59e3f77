package shellsession

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Dialect identifies the shell flavor a session talks to. The set is closed.
type Dialect string

// Supported dialects.
const (
	// DialectPOSIX is a native bash or zsh on a Unix-like host.
	DialectPOSIX Dialect = "posix"
	// DialectMSYS is a Git Bash (MSYS2) shell on Windows, addressing drives as /c/...
	DialectMSYS Dialect = "msys"
	// DialectWSL is bash inside the Windows Subsystem for Linux, addressing drives as /mnt/c/...
	DialectWSL Dialect = "wsl"
)

const (
	windowsPathSeparatorConstant   = `\`
	shellPathSeparatorConstant     = "/"
	drivePrefixSeparatorConstant   = ':'
	wslMountPrefixConstant         = "/mnt/"
	loginFlagConstant              = "-l"
	noExecuteFlagConstant          = "-n"
	commandFlagConstant            = "-c"
	wslExecuteFlagConstant         = "-e"
	wslBashBinaryConstant          = "bash"
	quoteFailureTemplateConstant   = "unable to quote command: %w"
	unknownDialectTemplateConstant = "unknown shell dialect %q"
)

// ParseDialect converts a textual dialect name into a Dialect.
func ParseDialect(name string) (Dialect, error) {
	candidate := Dialect(strings.ToLower(strings.TrimSpace(name)))
	switch candidate {
	case DialectPOSIX, DialectMSYS, DialectWSL:
		return candidate, nil
	default:
		return "", fmt.Errorf(unknownDialectTemplateConstant, name)
	}
}

// String implements fmt.Stringer.
func (dialect Dialect) String() string {
	return string(dialect)
}

// TranslatePath converts a host path into the form the shell understands.
func (dialect Dialect) TranslatePath(hostPath string) string {
	if dialect == DialectPOSIX {
		return hostPath
	}

	normalized := strings.ReplaceAll(hostPath, windowsPathSeparatorConstant, shellPathSeparatorConstant)
	if strings.HasPrefix(normalized, shellPathSeparatorConstant) {
		return normalized
	}

	driveLetter, remainder, hasDrive := splitDrive(normalized)
	if !hasDrive {
		return normalized
	}
	if len(remainder) > 0 && !strings.HasPrefix(remainder, shellPathSeparatorConstant) {
		remainder = shellPathSeparatorConstant + remainder
	}

	if dialect == DialectWSL {
		return wslMountPrefixConstant + driveLetter + remainder
	}
	return shellPathSeparatorConstant + driveLetter + remainder
}

// HostPath converts a path reported by the shell back into a host path.
// Paths outside a translated drive are returned unchanged.
func (dialect Dialect) HostPath(shellPath string) string {
	if dialect == DialectPOSIX {
		return shellPath
	}

	drivePrefix := shellPathSeparatorConstant
	if dialect == DialectWSL {
		drivePrefix = wslMountPrefixConstant
	}
	if !strings.HasPrefix(shellPath, drivePrefix) {
		return shellPath
	}

	afterPrefix := strings.TrimPrefix(shellPath, drivePrefix)
	if len(afterPrefix) == 0 || !isDriveLetter(afterPrefix[0]) {
		return shellPath
	}
	if len(afterPrefix) > 1 && afterPrefix[1] != '/' {
		return shellPath
	}

	driveLetter := strings.ToUpper(afterPrefix[:1])
	remainder := afterPrefix[1:]
	if len(remainder) == 0 {
		remainder = shellPathSeparatorConstant
	}
	return driveLetter + string(drivePrefixSeparatorConstant) + strings.ReplaceAll(remainder, shellPathSeparatorConstant, windowsPathSeparatorConstant)
}

// Quote renders text as a single bash word.
func (dialect Dialect) Quote(text string) (string, error) {
	quoted, quoteError := syntax.Quote(text, syntax.LangBash)
	if quoteError != nil {
		return "", fmt.Errorf(quoteFailureTemplateConstant, quoteError)
	}
	return quoted, nil
}

// InvocationArguments returns the arguments used to start the persistent shell.
func (dialect Dialect) InvocationArguments() []string {
	if dialect == DialectWSL {
		return []string{wslExecuteFlagConstant, wslBashBinaryConstant, loginFlagConstant}
	}
	return []string{loginFlagConstant}
}

// SyntaxCheckArguments returns the arguments for a parse-only run of command.
func (dialect Dialect) SyntaxCheckArguments(command string) []string {
	if dialect == DialectWSL {
		return []string{wslExecuteFlagConstant, wslBashBinaryConstant, noExecuteFlagConstant, commandFlagConstant, command}
	}
	return []string{noExecuteFlagConstant, commandFlagConstant, command}
}

func splitDrive(path string) (string, string, bool) {
	if len(path) < 2 || path[1] != drivePrefixSeparatorConstant || !isDriveLetter(path[0]) {
		return "", "", false
	}
	return strings.ToLower(path[:1]), path[2:], true
}

func isDriveLetter(candidate byte) bool {
	return (candidate >= 'a' && candidate <= 'z') || (candidate >= 'A' && candidate <= 'Z')
}
