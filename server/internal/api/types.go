package api

import (
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
	"github.com/floorscore/floorscore/server/internal/allocation"
)

// HealthResponse is the payload for GET /api/v1/health.
// AverageEfficiency and State describe "no data" explicitly when there are
// no records: the average is null and the state is "no_data".
type HealthResponse struct {
	RecordCount       int                     `json:"record_count"`
	AverageEfficiency *float64                `json:"average_efficiency"`
	State             string                  `json:"state"`
	Bands             map[efficiency.Band]int `json:"bands"`
	OverageCount      int                     `json:"overage_count"`
	AlertCount        int                     `json:"alert_count"`
}

// RecordResponse is one record with its derived efficiency, as returned by
// every /api/v1/records endpoint.
type RecordResponse struct {
	*types.ShiftRecord
	Efficiency  int              `json:"efficiency"`
	Score       efficiency.Score `json:"score"`
	Band        efficiency.Band  `json:"band"`
	Profile     string           `json:"profile"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// PageResponse is the payload for GET /api/v1/records.
type PageResponse struct {
	Items      []RecordResponse `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// HourlyUpdateResponse is the payload for POST /api/v1/records/{id}/hourly-updates.
// Applied is false when the update ID had already been recorded.
type HourlyUpdateResponse struct {
	Applied bool           `json:"applied"`
	Record  RecordResponse `json:"record"`
}

// ScoreResponse is the payload for POST /api/v1/score.
type ScoreResponse struct {
	Input   efficiency.Record `json:"input"`
	Score   efficiency.Score  `json:"score"`
	Band    efficiency.Band   `json:"band"`
	Profile string            `json:"profile"`
}

// OptionsResponse is the payload for GET /api/v1/options/{field}.
type OptionsResponse struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func toRecordResponse(s allocation.Scored) RecordResponse {
	return RecordResponse{
		ShiftRecord: s.Record,
		Efficiency:  s.Score.Value,
		Score:       s.Score,
		Band:        s.Band,
		Profile:     s.Profile,
		Diagnostics: computeDiagnostics(s),
	}
}
