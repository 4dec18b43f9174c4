package ingest

import "github.com/floorscore/floorscore/pkg/efficiency"

// Path is the ingest endpoint on floorscore-server.
const Path = "/ingest/v1/hourly-updates"

// MaxBatch is the largest batch the server accepts.
const MaxBatch = 1000

// Per-update outcomes.
const (
	StatusApplied   = "applied"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
	StatusNotFound  = "not_found"
)

// Update is one hourly production reading for a shift record.
type Update struct {
	ID              string  `json:"id"`
	RecordID        string  `json:"record_id"`
	Time            string  `json:"time,omitempty"`
	ProductsMade    int     `json:"products_made"`
	ReworkCount     int     `json:"rework_count"`
	DowntimeMinutes float64 `json:"downtime_minutes"`
	DowntimeReason  string  `json:"downtime_reason"`
	Source          string  `json:"source,omitempty"`
}

// Raw renders u in the untyped form accepted by the record service.
func (u Update) Raw() efficiency.RawRecord {
	return efficiency.RawRecord{
		"id":                            u.ID,
		"time":                          u.Time,
		"source":                        u.Source,
		efficiency.FieldProductsMade:    u.ProductsMade,
		efficiency.FieldReworkCount:     u.ReworkCount,
		efficiency.FieldDowntimeMinutes: u.DowntimeMinutes,
		"downtime_reason":               u.DowntimeReason,
	}
}

// Batch is the request body for Path.
type Batch struct {
	Agent   string   `json:"agent,omitempty"`
	Updates []Update `json:"updates"`
}

// Result is the outcome for one update of a batch.
type Result struct {
	ID       string            `json:"id"`
	RecordID string            `json:"record_id"`
	Status   string            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`

	// Efficiency is the record's score after the update, set when the
	// record exists.
	Efficiency *int `json:"efficiency,omitempty"`
}

// Response is the response body for Path.
type Response struct {
	Applied   int      `json:"applied"`
	Duplicate int      `json:"duplicate"`
	Rejected  int      `json:"rejected"`
	Results   []Result `json:"results"`
}

// Retryable reports whether a result may succeed if sent again later. A
// record that does not exist yet may be created by a supervisor.
func (r Result) Retryable() bool { return r.Status == StatusNotFound }
