// Package ui provides helpers for formatting human-readable console output.
//
// The helpers translate shell session and helper command events into concise
// messages for CLI users while detailed telemetry continues to flow through
// structured loggers.
package ui
