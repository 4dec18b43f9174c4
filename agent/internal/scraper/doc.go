// Package scraper reads production counters from station metrics endpoints.
// Each Station scraper polls one Prometheus endpoint (protobuf or text
// exposition, negotiated by Accept) and returns a Reading with the
// cumulative products, rework and downtime-seconds totals, optionally
// restricted to series carrying the station's labels. The compute engine
// turns successive readings into per-window hourly updates.
//
// NewHTTPClient attaches credentials (mTLS, API key, bearer token, basic)
// and is also used by the shipper to reach the server.
package scraper
