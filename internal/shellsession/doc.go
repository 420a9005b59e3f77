// Package shellsession keeps one long-lived bash or zsh process alive and runs
// commands against it one at a time.
//
// A Session writes each command to the shell's standard input wrapped in a
// short script that redirects output into per-session signal files and records
// the exit status last. A completion detector polls those files, streams
// cumulative output to an optional callback and finalizes the command on
// completion, timeout or interruption. Timeouts and interruptions terminate the
// shell's child processes only, so the session survives for the next command.
package shellsession
