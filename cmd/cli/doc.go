// Package cli constructs the shellkeeper command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives around persistent shell sessions.
package cli
