// Package allocation is the command/query boundary over shift records.
//
// Commands (Create, Update, AddHourlyUpdate, ChangeWorker, Delete, Import)
// validate their input, persist through store.Store and return the record
// together with its freshly computed efficiency. Queries (Get, Query, Report,
// Options) score records on read with the parameters current at that moment;
// scores are never persisted. SetParams swaps the scoring parameters live.
package allocation
