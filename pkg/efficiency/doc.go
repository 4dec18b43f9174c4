// Package efficiency scores a worker's shift production against a target rate.
//
// validate.go turns untyped input (decoded JSON objects, CSV rows, form
// values) into a typed Record, collecting per-field failures into a
// *ValidationError instead of defaulting silently.
//
// score.go provides the pure Compute(Record, Params) function:
//
//	base    = products / (hours * target_rate_per_hour) * 100
//	penalty = rework * rework_penalty_per_unit + downtime_min * downtime_cost_per_minute
//	value   = round_half_up(max(0, base - penalty))
//
// No ceiling is applied unless Params.Ceiling is CeilingClamp. Either way a raw
// result above 100 sets Score.Overage so callers can flag it for review.
//
// aggregate.go reduces (record ID, score) pairs into average, best and worst in
// a single pass. Ties resolve to the lowest record ID.
//
// Nothing in this package performs I/O or holds state; every function is safe
// to call concurrently.
package efficiency
