// Package logging builds the slog JSON logger used by every binary, with
// optional size-based file rotation through lumberjack.
package logging
