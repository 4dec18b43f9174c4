package efficiency

import (
	"iter"
	"math"
	"strconv"
)

// Entry pairs a record ID with its efficiency value.
type Entry struct {
	RecordID string `json:"record_id"`
	Value    int    `json:"value"`
}

// Summary is the reduction of a sequence of entries. It is only meaningful
// when Aggregate returned a nil error.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Best    Entry   `json:"best"`
	Worst   Entry   `json:"worst"`
}

// RoundedAverage returns Average rounded half-up to places decimals.
func (s Summary) RoundedAverage(places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Floor(s.Average*scale+0.5) / scale
}

// Aggregate reduces seq in one pass. Ties for best and worst go to the lowest
// record ID. An empty sequence yields ErrEmptyAggregateInput.
func Aggregate(seq iter.Seq[Entry]) (Summary, error) {
	var (
		s     Summary
		total int64
	)
	for e := range seq {
		if s.Count == 0 {
			s.Best, s.Worst = e, e
		} else {
			if e.Value > s.Best.Value || (e.Value == s.Best.Value && lessID(e.RecordID, s.Best.RecordID)) {
				s.Best = e
			}
			if e.Value < s.Worst.Value || (e.Value == s.Worst.Value && lessID(e.RecordID, s.Worst.RecordID)) {
				s.Worst = e
			}
		}
		total += int64(e.Value)
		s.Count++
	}
	if s.Count == 0 {
		return Summary{}, ErrEmptyAggregateInput
	}
	s.Average = float64(total) / float64(s.Count)
	return s, nil
}

// Entries adapts a slice into a sequence that can be ranged any number of times.
func Entries(es []Entry) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range es {
			if !yield(e) {
				return
			}
		}
	}
}

// lessID orders record IDs numerically when both are integers and
// lexicographically otherwise.
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
