package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/floorscore/floorscore/server/internal/allocation"
)

// condition is a parsed rule expression: field op value.
type condition struct {
	field string
	op    string
	rhs   string
	num   float64
}

// numericFields maps a condition field to its value on a scored record.
var numericFields = map[string]func(allocation.Scored) float64{
	"efficiency":       func(s allocation.Scored) float64 { return float64(s.Score.Value) },
	"raw_efficiency":   func(s allocation.Scored) float64 { return s.Score.Raw },
	"base_efficiency":  func(s allocation.Scored) float64 { return s.Score.Base },
	"penalty":          func(s allocation.Scored) float64 { return s.Score.Penalty },
	"downtime_minutes": func(s allocation.Scored) float64 { return s.Record.DowntimeMinutes },
	"rework_count":     func(s allocation.Scored) float64 { return float64(s.Record.ReworkCount) },
	"products_made":    func(s allocation.Scored) float64 { return float64(s.Record.ProductsMade) },
	"hours":            func(s allocation.Scored) float64 { return s.Record.TotalHoursWorked },
}

// parseCondition parses a rule condition.
//
// Supported expressions (field operator value):
//
//	efficiency < 60
//	raw_efficiency > 100
//	downtime_minutes >= 45
//	rework_count > 10
//	hours < 4
//	band == low
//	overage == true
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	c := condition{field: parts[0], op: parts[1], rhs: parts[2]}

	switch c.field {
	case "band", "overage":
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("condition %q: %s supports == and != only", cond, c.field)
		}
		return c, nil
	}
	if _, ok := numericFields[c.field]; !ok {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", cond, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", cond, c.op)
	}
	n, err := strconv.ParseFloat(c.rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: value %q is not a number", cond, c.rhs)
	}
	c.num = n
	return c, nil
}

// eval returns whether the condition holds for s and the triggering value.
func (c condition) eval(s allocation.Scored) (bool, float64) {
	switch c.field {
	case "band":
		eq := strings.EqualFold(string(s.Band), c.rhs)
		return eq == (c.op == "=="), float64(s.Score.Value)
	case "overage":
		want, _ := strconv.ParseBool(c.rhs)
		eq := s.Score.Overage == want
		return eq == (c.op == "=="), s.Score.Raw
	}
	v := numericFields[c.field](s)
	return compareFloat(v, c.op, c.num), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
