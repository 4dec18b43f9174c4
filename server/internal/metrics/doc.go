// Package metrics exposes floor efficiency as Prometheus metrics.
//
// Collector gathers gauges from the current record set (count, average
// efficiency, efficiency per record, records per band, totals, downtime per
// reason) plus the alert engine and WebSocket hub, and counts record changes
// by kind. ServeHTTP writes the families in the text exposition format, so
// the server can be scraped at /metrics without pulling in the full client
// library.
package metrics
