package allocation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
)

// Descriptive field names accepted on record input.
const (
	fieldID             = "id"
	fieldWorkerName     = "worker_name"
	fieldSkill          = "skill"
	fieldLineNumber     = "line_number"
	fieldMachineNumber  = "machine_number"
	fieldProductID      = "product_id"
	fieldShift          = "shift"
	fieldDate           = "date"
	fieldDowntimeReason = "downtime_reason"
)

// inputAliases are alternative keys seen on forms and spreadsheets.
var inputAliases = map[string][]string{
	fieldWorkerName:     {"name", "workerName"},
	fieldLineNumber:     {"lineNumber", "line"},
	fieldMachineNumber:  {"machineNumber", "machine"},
	fieldProductID:      {"productId", "product"},
	fieldDate:           {"datetime"},
	fieldDowntimeReason: {"downtimeReason"},
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// lookup returns raw[field] or the first present alias.
func lookup(raw efficiency.RawRecord, field string) (any, bool) {
	if v, ok := raw[field]; ok {
		return v, true
	}
	for _, alt := range inputAliases[field] {
		if v, ok := raw[alt]; ok {
			return v, true
		}
	}
	return nil, false
}

// str renders an untyped scalar as trimmed text. Integral floats lose their
// fraction so that JSON numbers used as IDs read naturally.
func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// ParseDate normalises a date or datetime to YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", efficiency.ErrTypeMismatch
}

// ParseReason validates a downtime reason, matching case-insensitively.
func ParseReason(s string) (types.DowntimeReason, bool) {
	for _, r := range types.DowntimeReasons {
		if strings.EqualFold(string(r), s) {
			return r, true
		}
	}
	return "", false
}

// applyDescriptive copies the non-scoring fields present in raw onto rec and
// returns any validation failures.
func applyDescriptive(rec *types.ShiftRecord, raw efficiency.RawRecord) error {
	var errs []error

	set := func(field string, dst *string) {
		if v, ok := lookup(raw, field); ok {
			*dst = str(v)
		}
	}
	set(fieldWorkerName, &rec.WorkerName)
	set(fieldSkill, &rec.Skill)
	set(fieldLineNumber, &rec.LineNumber)
	set(fieldMachineNumber, &rec.MachineNumber)
	set(fieldProductID, &rec.ProductID)
	set(fieldShift, &rec.Shift)

	if v, ok := lookup(raw, fieldDate); ok {
		if s := str(v); s == "" {
			rec.Date = ""
		} else if d, err := ParseDate(s); err != nil {
			errs = append(errs, efficiency.Invalid(fieldDate, efficiency.ErrTypeMismatch, v))
		} else {
			rec.Date = d
		}
	}

	if v, ok := lookup(raw, fieldDowntimeReason); ok {
		if s := str(v); s == "" {
			rec.DowntimeReason = ""
		} else if r, ok := ParseReason(s); !ok {
			errs = append(errs, efficiency.Invalid(fieldDowntimeReason, ErrUnknownReason, v))
		} else {
			rec.DowntimeReason = r
		}
	}

	return efficiency.Merge(errs...)
}

// rawOf renders rec back into input form, the base for partial updates.
func rawOf(rec *types.ShiftRecord) efficiency.RawRecord {
	return efficiency.RawRecord{
		fieldID:                          rec.ID,
		efficiency.FieldWorkerID:         rec.WorkerID,
		fieldWorkerName:                  rec.WorkerName,
		fieldSkill:                       rec.Skill,
		fieldLineNumber:                  rec.LineNumber,
		fieldMachineNumber:               rec.MachineNumber,
		fieldProductID:                   rec.ProductID,
		fieldShift:                       rec.Shift,
		fieldDate:                        rec.Date,
		efficiency.FieldTotalHoursWorked: rec.TotalHoursWorked,
		efficiency.FieldProductsMade:     rec.ProductsMade,
		efficiency.FieldReworkCount:      rec.ReworkCount,
		efficiency.FieldDowntimeMinutes:  rec.DowntimeMinutes,
		fieldDowntimeReason:              string(rec.DowntimeReason),
	}
}

// canonicalKey maps an input key (wire name or alias) to its wire name.
func canonicalKey(k string) string {
	for field, alts := range inputAliases {
		for _, a := range alts {
			if a == k {
				return field
			}
		}
	}
	switch k {
	case "workerId", "workerID":
		return efficiency.FieldWorkerID
	case "totalHoursWorked":
		return efficiency.FieldTotalHoursWorked
	case "productsMade":
		return efficiency.FieldProductsMade
	case "reworkCount":
		return efficiency.FieldReworkCount
	case "downtimeMinutes":
		return efficiency.FieldDowntimeMinutes
	}
	return k
}

// overlay merges patch onto base by canonical key.
func overlay(base, patch efficiency.RawRecord) efficiency.RawRecord {
	out := make(efficiency.RawRecord, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[canonicalKey(k)] = v
	}
	return out
}
