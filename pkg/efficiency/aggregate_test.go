package efficiency

import (
	"errors"
	"testing"
)

func TestAggregate_Sample(t *testing.T) {
	s, err := Aggregate(Entries([]Entry{{"A", 38}, {"B", 53}, {"C", 90}}))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if got := s.RoundedAverage(2); got != 60.33 {
		t.Errorf("RoundedAverage(2) = %v, want 60.33", got)
	}
	if s.Best.RecordID != "C" || s.Best.Value != 90 {
		t.Errorf("Best = %+v, want C/90", s.Best)
	}
	if s.Worst.RecordID != "A" || s.Worst.Value != 38 {
		t.Errorf("Worst = %+v, want A/38", s.Worst)
	}
}

func TestAggregate_Empty(t *testing.T) {
	s, err := Aggregate(Entries(nil))
	if !errors.Is(err, ErrEmptyAggregateInput) {
		t.Fatalf("err = %v, want ErrEmptyAggregateInput", err)
	}
	if s != (Summary{}) {
		t.Errorf("Summary on empty input = %+v, want zero value", s)
	}
}

func TestAggregate_Single(t *testing.T) {
	s, err := Aggregate(Entries([]Entry{{"only", 71}}))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if s.Best != s.Worst || s.Best.RecordID != "only" || s.Average != 71 {
		t.Errorf("single entry summary = %+v", s)
	}
}

func TestAggregate_TieBreak(t *testing.T) {
	tests := []struct {
		name      string
		in        []Entry
		wantBest  string
		wantWorst string
	}{
		{
			name:      "numeric ids compare as numbers",
			in:        []Entry{{"10", 80}, {"9", 80}, {"2", 50}, {"11", 50}},
			wantBest:  "9",
			wantWorst: "2",
		},
		{
			name:      "non-numeric ids compare lexicographically",
			in:        []Entry{{"b", 70}, {"a", 70}, {"c", 70}},
			wantBest:  "a",
			wantWorst: "a",
		},
		{
			name:      "order of arrival does not matter",
			in:        []Entry{{"3", 60}, {"1", 60}, {"2", 60}},
			wantBest:  "1",
			wantWorst: "1",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Aggregate(Entries(tc.in))
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if s.Best.RecordID != tc.wantBest {
				t.Errorf("Best = %q, want %q", s.Best.RecordID, tc.wantBest)
			}
			if s.Worst.RecordID != tc.wantWorst {
				t.Errorf("Worst = %q, want %q", s.Worst.RecordID, tc.wantWorst)
			}
		})
	}
}

func TestAggregate_Restartable(t *testing.T) {
	seq := Entries([]Entry{{"1", 10}, {"2", 20}})
	first, err1 := Aggregate(seq)
	second, err2 := Aggregate(seq)
	if err1 != nil || err2 != nil {
		t.Fatalf("Aggregate errors: %v, %v", err1, err2)
	}
	if first != second {
		t.Errorf("second pass = %+v, want %+v", second, first)
	}
}

func TestEntries_EarlyStop(t *testing.T) {
	n := 0
	for range Entries([]Entry{{"1", 1}, {"2", 2}, {"3", 3}}) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d entries, want 2", n)
	}
}
