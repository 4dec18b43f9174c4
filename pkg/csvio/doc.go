// Package csvio reads header-keyed CSV rows into scoring input and writes
// scored rows back out. Used by the import/export endpoints and the effscore
// batch command.
package csvio
