// Package api implements the HTTP REST API for floorscore-server.
//
// New(svc, alerts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                          record count, average efficiency, band counts
//	GET    /api/v1/records                         filtered, sorted, paged records
//	POST   /api/v1/records                         create a record
//	GET    /api/v1/records/{id}                    one record with its score and diagnostics
//	PUT    /api/v1/records/{id}                    merge fields onto a record (PATCH is accepted too)
//	DELETE /api/v1/records/{id}                    delete a record
//	POST   /api/v1/records/{id}/hourly-updates     append an hourly update
//	POST   /api/v1/records/{id}/worker-changes     hand the record to a replacement worker
//	GET    /api/v1/report                          aggregate over the filtered records
//	GET    /api/v1/options/{field}                 distinct values for a filter dropdown
//	POST   /api/v1/score                           score an unsaved record
//	GET    /api/v1/params                          scoring parameters in effect
//	POST   /api/v1/import                          bulk create from a CSV body
//	GET    /api/v1/export                          filtered records as CSV
//	GET    /api/v1/alerts                          firing and recently resolved alerts
//
// Validation failures return 422 with a per-field error map. Unknown records
// return 404 and duplicate IDs 409. Wrong methods return 405.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
