// Package shipper delivers closed station windows to floorscore-server as
// hourly updates (POST /ingest/v1/hourly-updates, JSON body).
//
// Shipper.Ship() is non-blocking: each window is mapped to its station's
// current shift record and placed in an in-memory channel (default capacity
// 1000). When the buffer is full the oldest entry is evicted.
//
// Shipper.Run() drains the buffer every ship interval in batches, backing
// off (1s→60s, ±25% jitter) on transport errors and 5xx responses. Other 4xx
// responses discard the batch. Updates for a record the server does not know
// yet are resent a few times before being dropped.
//
// Update IDs are derived from the station, record and window so a resend
// after a lost response is reported as a duplicate instead of counted twice.
package shipper
