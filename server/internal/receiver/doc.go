// Package receiver implements the HTTP endpoint that accepts hourly-update
// batches from floorscore-agent instances.
//
// Receiver.ServeHTTP decodes an ingest.Batch and applies each update to its
// shift record through the allocation service. Every update gets its own
// result: applied, duplicate (the update ID was already recorded), not_found,
// or rejected with per-field errors. An update without a record_id is
// rejected. Authentication is enforced upstream by the HTTP middleware
// (see package auth), so the receiver itself only performs structural
// validation.
//
// New(svc) wires the receiver to the given allocation service.
package receiver
