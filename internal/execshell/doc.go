// Package execshell runs short-lived helper processes on behalf of the shell engine.
//
// ShellExecutor wraps a CommandRunner with zap logging, lifecycle observers,
// and typed errors. OSCommandRunner is the os/exec backed runner. The engine
// uses it for syntax checks, child-process enumeration, and shell probes,
// never for the user's commands themselves.
package execshell
