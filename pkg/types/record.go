package types

import (
	"slices"
	"time"

	"github.com/floorscore/floorscore/pkg/efficiency"
)

// DowntimeReason is the "4M" cause category attached to downtime.
type DowntimeReason string

const (
	ReasonMachine       DowntimeReason = "Machine"
	ReasonMen           DowntimeReason = "Men"
	ReasonMaterial      DowntimeReason = "Material"
	ReasonManufacturing DowntimeReason = "Manufacturing"
)

// DowntimeReasons lists the accepted reasons in display order.
var DowntimeReasons = []DowntimeReason{ReasonMachine, ReasonMen, ReasonMaterial, ReasonManufacturing}

// Valid reports whether r is one of DowntimeReasons.
func (r DowntimeReason) Valid() bool {
	return slices.Contains(DowntimeReasons, r)
}

// ShiftRecord is one worker's allocation on a line and machine for a shift.
// Its efficiency is derived from the quantities and never stored.
type ShiftRecord struct {
	ID            string `json:"id"`
	WorkerID      string `json:"worker_id"`
	WorkerName    string `json:"worker_name"`
	Skill         string `json:"skill,omitempty"`
	LineNumber    string `json:"line_number"`
	MachineNumber string `json:"machine_number"`
	ProductID     string `json:"product_id"`
	Shift         string `json:"shift"`
	Date          string `json:"date"` // YYYY-MM-DD

	TotalHoursWorked float64        `json:"total_hours_worked"`
	ProductsMade     int            `json:"products_made"`
	ReworkCount      int            `json:"rework_count"`
	DowntimeMinutes  float64        `json:"downtime_minutes"`
	DowntimeReason   DowntimeReason `json:"downtime_reason,omitempty"`

	HourlyUpdates []HourlyUpdate `json:"hourly_updates"`
	WorkerChanges []WorkerChange `json:"worker_changes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HourlyUpdate is an incremental production report for one hour of a shift.
type HourlyUpdate struct {
	ID              string         `json:"id"`
	Time            string         `json:"time"` // hour label, e.g. "1 PM"
	ProductsMade    int            `json:"products_made"`
	ReworkCount     int            `json:"rework_count"`
	DowntimeMinutes float64        `json:"downtime_minutes"`
	DowntimeReason  DowntimeReason `json:"downtime_reason"`
	Source          string         `json:"source,omitempty"` // "manual" or an agent ID
	RecordedAt      time.Time      `json:"recorded_at"`
}

// WorkerChange records a mid-shift replacement.
type WorkerChange struct {
	ID               string    `json:"id"`
	Original         string    `json:"original"`
	Replacement      string    `json:"replacement"`
	HoursOriginal    float64   `json:"hours_original"`
	HoursReplacement float64   `json:"hours_replacement"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}

// ScoringRecord projects r onto the fields the efficiency formula reads.
func (r *ShiftRecord) ScoringRecord() efficiency.Record {
	return efficiency.Record{
		WorkerID:         r.WorkerID,
		TotalHoursWorked: r.TotalHoursWorked,
		ProductsMade:     r.ProductsMade,
		ReworkCount:      r.ReworkCount,
		DowntimeMinutes:  r.DowntimeMinutes,
	}
}

// HasUpdate reports whether an hourly update with id was already applied.
func (r *ShiftRecord) HasUpdate(id string) bool {
	return slices.ContainsFunc(r.HourlyUpdates, func(u HourlyUpdate) bool { return u.ID == id })
}

// ApplyHourlyUpdate adds u's quantities to the running totals and appends it.
// An update whose ID is already present is ignored and false is returned.
func (r *ShiftRecord) ApplyHourlyUpdate(u HourlyUpdate) bool {
	if u.ID != "" && r.HasUpdate(u.ID) {
		return false
	}
	r.ProductsMade += u.ProductsMade
	r.ReworkCount += u.ReworkCount
	r.DowntimeMinutes += u.DowntimeMinutes
	if u.DowntimeMinutes > 0 {
		r.DowntimeReason = u.DowntimeReason
	}
	r.HourlyUpdates = append(r.HourlyUpdates, u)
	return true
}

// ApplyWorkerChange hands the record over to the replacement worker. Hours
// worked become the replacement's hours.
func (r *ShiftRecord) ApplyWorkerChange(c WorkerChange) {
	if c.Original == "" {
		c.Original = r.WorkerName
	}
	r.WorkerName = c.Replacement
	r.TotalHoursWorked = c.HoursReplacement
	r.WorkerChanges = append(r.WorkerChanges, c)
}

// Clone returns a deep copy of r.
func (r *ShiftRecord) Clone() *ShiftRecord {
	c := *r
	c.HourlyUpdates = slices.Clone(r.HourlyUpdates)
	c.WorkerChanges = slices.Clone(r.WorkerChanges)
	return &c
}

// HourLabel renders the hour containing t the way shift sheets label it ("1 PM").
func HourLabel(t time.Time) string {
	return t.Format("3 PM")
}
