// Package store persists shift records. Memory is a thread-safe map for tests
// and single-process deployments; SQLite persists to a database file. Both
// satisfy Store and return ErrNotFound / ErrExists for missing or duplicate IDs.
package store
