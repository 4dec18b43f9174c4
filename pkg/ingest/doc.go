// Package ingest defines the JSON wire format shared by floorscore-agent and
// the server's ingest endpoint.
//
// An agent POSTs a Batch of hourly updates to Path. The server applies each
// update to its shift record and answers with one Result per update, in
// order. Update IDs make delivery idempotent: resending a batch reports the
// already-applied updates as StatusDuplicate and changes nothing.
package ingest
