package efficiency

import (
	"fmt"
	"math"
)

// Default scoring parameters, as used on the allocation report.
const (
	DefaultTargetRatePerHour     = 20.0
	DefaultReworkPenaltyPerUnit  = 2.0
	DefaultDowntimeCostPerMinute = 0.5
)

// CeilingPolicy controls what happens to scores above 100.
type CeilingPolicy string

const (
	// CeilingNone leaves overage in place; Score.Overage marks it.
	CeilingNone CeilingPolicy = "none"
	// CeilingClamp caps Score.Value at 100; Score.Overage is still set.
	CeilingClamp CeilingPolicy = "clamp"
)

// Params holds the tunable constants of the efficiency formula.
type Params struct {
	// TargetRatePerHour is the expected units per hour. Must be > 0.
	TargetRatePerHour float64 `yaml:"target_rate_per_hour" json:"target_rate_per_hour"`

	// ReworkPenaltyPerUnit is the points deducted per reworked unit. Must be >= 0.
	ReworkPenaltyPerUnit float64 `yaml:"rework_penalty_per_unit" json:"rework_penalty_per_unit"`

	// DowntimeCostPerMinute is the points deducted per downtime minute. Must be >= 0.
	DowntimeCostPerMinute float64 `yaml:"downtime_cost_per_minute" json:"downtime_cost_per_minute"`

	// Ceiling selects the upper-bound policy. Empty means CeilingNone.
	Ceiling CeilingPolicy `yaml:"ceiling" json:"ceiling"`
}

// DefaultParams returns the observed production constants with no ceiling.
func DefaultParams() Params {
	return Params{
		TargetRatePerHour:     DefaultTargetRatePerHour,
		ReworkPenaltyPerUnit:  DefaultReworkPenaltyPerUnit,
		DowntimeCostPerMinute: DefaultDowntimeCostPerMinute,
		Ceiling:               CeilingNone,
	}
}

// Validate checks that p can be used by Compute.
func (p Params) Validate() error {
	if !finite(p.TargetRatePerHour) || p.TargetRatePerHour <= 0 {
		return fmt.Errorf("target_rate_per_hour must be positive, got %v", p.TargetRatePerHour)
	}
	if !finite(p.ReworkPenaltyPerUnit) || p.ReworkPenaltyPerUnit < 0 {
		return fmt.Errorf("rework_penalty_per_unit must not be negative, got %v", p.ReworkPenaltyPerUnit)
	}
	if !finite(p.DowntimeCostPerMinute) || p.DowntimeCostPerMinute < 0 {
		return fmt.Errorf("downtime_cost_per_minute must not be negative, got %v", p.DowntimeCostPerMinute)
	}
	switch p.Ceiling {
	case "", CeilingNone, CeilingClamp:
	default:
		return fmt.Errorf("ceiling %q unknown: want none|clamp", p.Ceiling)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
