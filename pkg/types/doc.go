// Package types defines the shift-record model shared by the server, the
// agent and the CLI. These are the canonical in-memory and JSON wire
// representations; scoring itself lives in pkg/efficiency.
package types
