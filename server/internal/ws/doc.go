// Package ws implements the WebSocket dashboard feed for floorscore-server.
//
// Hub pushes the aggregate report to every connected client on a fixed
// interval and again shortly after any record is created, updated or
// deleted (Hub.Notify is registered with the allocation service's
// OnChange). Clients subscribe with report query parameters, so
// /ws/dashboard?line_number=L2 streams the report for line L2 only. Clients
// with the same subscription share one query per broadcast. A client whose
// buffer is full is dropped.
//
// Message format sent to clients:
//
//	{
//	  "event": "dashboard",
//	  "data":  { "generated_at": "...", "filter": "line_number=L2", "report": { /* GET /api/v1/report */ } }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws
