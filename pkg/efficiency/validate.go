package efficiency

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Wire names of the scoring fields.
const (
	FieldWorkerID         = "worker_id"
	FieldTotalHoursWorked = "total_hours_worked"
	FieldProductsMade     = "products_made"
	FieldReworkCount      = "rework_count"
	FieldDowntimeMinutes  = "downtime_minutes"
)

// aliases maps each wire name to the other spellings accepted on input.
var aliases = map[string][]string{
	FieldWorkerID:         {"workerId", "workerID"},
	FieldTotalHoursWorked: {"totalHoursWorked"},
	FieldProductsMade:     {"productsMade"},
	FieldReworkCount:      {"reworkCount"},
	FieldDowntimeMinutes:  {"downtimeMinutes"},
}

// RawRecord is untyped scoring input: a decoded JSON object, a CSV row keyed
// by header, or form values.
type RawRecord map[string]any

// Lookup returns the value for field, trying accepted aliases, and whether a
// non-empty value was present.
func (r RawRecord) Lookup(field string) (any, bool) {
	if v, ok := r[field]; ok && !blank(v) {
		return v, true
	}
	for _, alt := range aliases[field] {
		if v, ok := r[alt]; ok && !blank(v) {
			return v, true
		}
	}
	return nil, false
}

// Record is a validated WorkerShiftRecord: the quantities the formula needs.
type Record struct {
	WorkerID         string  `json:"worker_id"`
	TotalHoursWorked float64 `json:"total_hours_worked"`
	ProductsMade     int     `json:"products_made"`
	ReworkCount      int     `json:"rework_count"`
	DowntimeMinutes  float64 `json:"downtime_minutes"`
}

// Validate coerces raw into a Record. Every field is checked; all failures are
// returned together as a *ValidationError.
func Validate(raw RawRecord) (Record, error) {
	var (
		rec Record
		ve  ValidationError
	)

	if v, ok := raw.Lookup(FieldWorkerID); ok {
		rec.WorkerID = idString(v)
	}
	if rec.WorkerID == "" {
		ve.add(FieldWorkerID, ErrMissingField, nil)
	}

	if v, ok := raw.Lookup(FieldTotalHoursWorked); !ok {
		ve.add(FieldTotalHoursWorked, ErrMissingField, nil)
	} else if f, err := Float(v); err != nil {
		ve.add(FieldTotalHoursWorked, ErrTypeMismatch, v)
	} else {
		rec.TotalHoursWorked = f
	}

	rec.ProductsMade = intField(raw, FieldProductsMade, &ve)
	rec.ReworkCount = intField(raw, FieldReworkCount, &ve)

	if v, ok := raw.Lookup(FieldDowntimeMinutes); !ok {
		ve.add(FieldDowntimeMinutes, ErrMissingField, nil)
	} else if f, err := Float(v); err != nil {
		ve.add(FieldDowntimeMinutes, ErrTypeMismatch, v)
	} else {
		rec.DowntimeMinutes = f
	}

	// Range checks only apply to fields that parsed.
	if !ve.failed(FieldTotalHoursWorked) {
		rec.checkInto(&ve)
	} else {
		rec.checkQuantities(&ve)
	}

	if err := ve.orNil(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Check applies the numeric range rules to an already-typed record.
func (r Record) Check() error {
	var ve ValidationError
	r.checkInto(&ve)
	return ve.orNil()
}

func (r Record) checkInto(ve *ValidationError) {
	if !finite(r.TotalHoursWorked) {
		ve.add(FieldTotalHoursWorked, ErrTypeMismatch, r.TotalHoursWorked)
	} else if r.TotalHoursWorked <= 0 {
		ve.add(FieldTotalHoursWorked, ErrInvalidDivisor, r.TotalHoursWorked)
	}
	r.checkQuantities(ve)
}

func (r Record) checkQuantities(ve *ValidationError) {
	if r.ProductsMade < 0 && !ve.failed(FieldProductsMade) {
		ve.add(FieldProductsMade, ErrNegativeQuantity, r.ProductsMade)
	}
	if r.ReworkCount < 0 && !ve.failed(FieldReworkCount) {
		ve.add(FieldReworkCount, ErrNegativeQuantity, r.ReworkCount)
	}
	if !finite(r.DowntimeMinutes) && !ve.failed(FieldDowntimeMinutes) {
		ve.add(FieldDowntimeMinutes, ErrTypeMismatch, r.DowntimeMinutes)
	} else if r.DowntimeMinutes < 0 && !ve.failed(FieldDowntimeMinutes) {
		ve.add(FieldDowntimeMinutes, ErrNegativeQuantity, r.DowntimeMinutes)
	}
}

// failed reports whether field already has a recorded failure.
func (e *ValidationError) failed(field string) bool {
	for _, fe := range e.Errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func intField(raw RawRecord, field string, ve *ValidationError) int {
	v, ok := raw.Lookup(field)
	if !ok {
		ve.add(field, ErrMissingField, nil)
		return 0
	}
	n, err := Int(v)
	if err != nil {
		ve.add(field, ErrTypeMismatch, v)
		return 0
	}
	return n
}

// Float coerces v to a finite float64. Strings are trimmed before parsing.
func Float(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		p, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, ErrTypeMismatch
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, ErrTypeMismatch
		}
		f = p
	default:
		return 0, ErrTypeMismatch
	}
	if !finite(f) {
		return 0, ErrTypeMismatch
	}
	return f, nil
}

// Int coerces v to an int. Fractional values are rejected rather than
// truncated.
func Int(v any) (int, error) {
	f, err := Float(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, ErrTypeMismatch
	}
	return int(f), nil
}

// idString renders an identifier that may arrive as a string or a number.
func idString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
