// Package cli implements the effscore commands: score one shift from flags,
// score a CSV file of shifts, and print the effective parameters. The
// commands are kong command structs; cmd/effscore binds them to the command
// line.
package cli
