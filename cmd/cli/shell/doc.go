// Package shell builds the shellkeeper subcommands that drive persistent shell sessions.
package shell
