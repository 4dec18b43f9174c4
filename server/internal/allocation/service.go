package allocation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
	"github.com/floorscore/floorscore/server/internal/store"
)

// ErrBadFilter is returned for unknown filter, sort or option fields and
// malformed paging values.
var ErrBadFilter = errors.New("allocation: bad filter")

// DefaultPageSize is the list page size when neither config nor request sets one.
const DefaultPageSize = 5

// Scored is a record together with the efficiency derived from it.
type Scored struct {
	Record  *types.ShiftRecord `json:"record"`
	Score   efficiency.Score   `json:"score"`
	Band    efficiency.Band    `json:"band"`
	Profile string             `json:"profile"`
}

// Change describes a committed command. Deleted changes carry no record.
type Change struct {
	Kind   string  // created | updated | hourly_update | worker_change | deleted
	ID     string
	Scored *Scored
}

// Service owns the record store and the current scoring parameters.
type Service struct {
	store    store.Store
	pageSize int

	mu       sync.RWMutex
	profiles efficiency.Profiles

	lmu       sync.RWMutex
	listeners []func(Change)

	now   func() time.Time // injectable for deterministic tests
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the default list page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithProfiles sets the initial scoring parameters.
func WithProfiles(p efficiency.Profiles) Option {
	return func(s *Service) { s.profiles = p }
}

// New creates a Service over st with default parameters.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		pageSize: DefaultPageSize,
		profiles: efficiency.DefaultProfiles(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Profiles returns the scoring parameters currently in effect.
func (s *Service) Profiles() efficiency.Profiles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles
}

// SetParams validates and installs new scoring parameters. Records are scored
// with them from the next read on.
func (s *Service) SetParams(p efficiency.Profiles) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles = p
	s.mu.Unlock()
	slog.Info("allocation: scoring parameters updated",
		"target_rate_per_hour", p.Default.TargetRatePerHour,
		"rework_penalty_per_unit", p.Default.ReworkPenaltyPerUnit,
		"downtime_cost_per_minute", p.Default.DowntimeCostPerMinute,
		"ceiling", p.Default.Ceiling,
		"profiles", len(p.BySkill))
	return nil
}

// OnChange registers fn to be called after every committed command. fn runs
// on the caller's goroutine and must not block.
func (s *Service) OnChange(fn func(Change)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(c Change) {
	s.lmu.RLock()
	ls := s.listeners
	s.lmu.RUnlock()
	for _, fn := range ls {
		fn(c)
	}
}

// score computes rec's efficiency with the profile matching its skill.
func (s *Service) score(rec *types.ShiftRecord) Scored {
	params, name := s.Profiles().For(rec.Skill)
	sc := efficiency.Compute(rec.ScoringRecord(), params)
	return Scored{Record: rec, Score: sc, Band: sc.Band(), Profile: name}
}

// scoreAndFlag scores rec and logs overage. Used on write paths so each
// over-100 result is reported once per change rather than on every read.
func (s *Service) scoreAndFlag(rec *types.ShiftRecord) Scored {
	sc := s.score(rec)
	if sc.Score.Overage {
		slog.Warn("allocation: efficiency above 100, flag for review",
			"record_id", rec.ID, "raw", sc.Score.Raw, "value", sc.Score.Value, "profile", sc.Profile)
	}
	return sc
}

// ScoreRaw scores ad-hoc input without storing it. The optional "skill" key
// selects the parameter profile.
func (s *Service) ScoreRaw(raw efficiency.RawRecord) (efficiency.Record, efficiency.Score, string, error) {
	params, name := s.Profiles().For(str(raw["skill"]))
	rec, sc, err := efficiency.ScoreRaw(raw, params)
	if err != nil {
		return efficiency.Record{}, efficiency.Score{}, "", err
	}
	if sc.Overage {
		slog.Warn("allocation: efficiency above 100, flag for review",
			"worker_id", rec.WorkerID, "raw", sc.Raw, "value", sc.Value, "profile", name)
	}
	return rec, sc, name, nil
}

// Get returns one scored record.
func (s *Service) Get(ctx context.Context, id string) (Scored, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Scored{}, err
	}
	return s.score(rec), nil
}

// All returns every record scored, in store order.
func (s *Service) All(ctx context.Context) ([]Scored, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, len(recs))
	for i, r := range recs {
		out[i] = s.score(r)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
