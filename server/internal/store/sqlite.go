package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/floorscore/floorscore/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS shift_records (
	id                 TEXT PRIMARY KEY,
	worker_id          TEXT NOT NULL,
	worker_name        TEXT NOT NULL DEFAULT '',
	skill              TEXT NOT NULL DEFAULT '',
	line_number        TEXT NOT NULL DEFAULT '',
	machine_number     TEXT NOT NULL DEFAULT '',
	product_id         TEXT NOT NULL DEFAULT '',
	shift              TEXT NOT NULL DEFAULT '',
	date               TEXT NOT NULL DEFAULT '',
	total_hours_worked REAL NOT NULL,
	products_made      INTEGER NOT NULL,
	rework_count       INTEGER NOT NULL,
	downtime_minutes   REAL NOT NULL,
	downtime_reason    TEXT NOT NULL DEFAULT '',
	hourly_updates     TEXT NOT NULL DEFAULT '[]',
	worker_changes     TEXT NOT NULL DEFAULT '[]',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS shift_records_created ON shift_records (created_at, id);
`

const selectColumns = `
	SELECT id, worker_id, worker_name, skill, line_number, machine_number, product_id,
	       shift, date, total_hours_worked, products_made, rework_count, downtime_minutes,
	       downtime_reason, hourly_updates, worker_changes, created_at, updated_at
	FROM shift_records`

// SQLite is a Store backed by a SQLite database file. Hourly updates and
// worker changes are kept as JSON columns on the record row.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// timeFormat is fixed-width so that created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.ShiftRecord, error) {
	var (
		r                  types.ShiftRecord
		reason             string
		updates, changes   string
		createdAt, updated string
	)
	err := row.Scan(
		&r.ID, &r.WorkerID, &r.WorkerName, &r.Skill, &r.LineNumber, &r.MachineNumber, &r.ProductID,
		&r.Shift, &r.Date, &r.TotalHoursWorked, &r.ProductsMade, &r.ReworkCount, &r.DowntimeMinutes,
		&reason, &updates, &changes, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	r.DowntimeReason = types.DowntimeReason(reason)
	if err := json.Unmarshal([]byte(updates), &r.HourlyUpdates); err != nil {
		return nil, fmt.Errorf("store: decode hourly_updates for %q: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(changes), &r.WorkerChanges); err != nil {
		return nil, fmt.Errorf("store: decode worker_changes for %q: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse created_at for %q: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("store: parse updated_at for %q: %w", r.ID, err)
	}
	return &r, nil
}

func encodeLists(r *types.ShiftRecord) (string, string, error) {
	updates := r.HourlyUpdates
	if updates == nil {
		updates = []types.HourlyUpdate{}
	}
	changes := r.WorkerChanges
	if changes == nil {
		changes = []types.WorkerChange{}
	}
	u, err := json.Marshal(updates)
	if err != nil {
		return "", "", err
	}
	c, err := json.Marshal(changes)
	if err != nil {
		return "", "", err
	}
	return string(u), string(c), nil
}

func (s *SQLite) Create(ctx context.Context, rec *types.ShiftRecord) error {
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = now

	updates, changes, err := encodeLists(rec)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", rec.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM shift_records WHERE id = ?`, rec.ID).Scan(&n); err != nil {
		return fmt.Errorf("store: create %q: %w", rec.ID, err)
	}
	if n > 0 {
		return ErrExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shift_records (
			id, worker_id, worker_name, skill, line_number, machine_number, product_id,
			shift, date, total_hours_worked, products_made, rework_count, downtime_minutes,
			downtime_reason, hourly_updates, worker_changes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkerID, rec.WorkerName, rec.Skill, rec.LineNumber, rec.MachineNumber, rec.ProductID,
		rec.Shift, rec.Date, rec.TotalHoursWorked, rec.ProductsMade, rec.ReworkCount, rec.DowntimeMinutes,
		string(rec.DowntimeReason), updates, changes,
		rec.CreatedAt.Format(timeFormat), rec.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("store: create %q: %w", rec.ID, err)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, id string) (*types.ShiftRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", id, err)
	}
	return r, nil
}

func (s *SQLite) List(ctx context.Context) ([]*types.ShiftRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*types.ShiftRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Update(ctx context.Context, rec *types.ShiftRecord) error {
	r, err := s.Mutate(ctx, rec.ID, func(r *types.ShiftRecord) error {
		*r = *rec.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	rec.CreatedAt, rec.UpdatedAt = r.CreatedAt, r.UpdatedAt
	return nil
}

func (s *SQLite) Mutate(ctx context.Context, id string, fn func(*types.ShiftRecord) error) (*types.ShiftRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: mutate %q: %w", id, err)
	}

	created := r.CreatedAt
	if err := fn(r); err != nil {
		return nil, err
	}
	r.ID, r.CreatedAt = id, created
	r.UpdatedAt = s.now().UTC()

	updates, changes, err := encodeLists(r)
	if err != nil {
		return nil, fmt.Errorf("store: encode %q: %w", id, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE shift_records SET
			worker_id = ?, worker_name = ?, skill = ?, line_number = ?, machine_number = ?,
			product_id = ?, shift = ?, date = ?, total_hours_worked = ?, products_made = ?,
			rework_count = ?, downtime_minutes = ?, downtime_reason = ?, hourly_updates = ?,
			worker_changes = ?, updated_at = ?
		WHERE id = ?`,
		r.WorkerID, r.WorkerName, r.Skill, r.LineNumber, r.MachineNumber,
		r.ProductID, r.Shift, r.Date, r.TotalHoursWorked, r.ProductsMade,
		r.ReworkCount, r.DowntimeMinutes, string(r.DowntimeReason), updates,
		changes, r.UpdatedAt.Format(timeFormat), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: mutate %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit %q: %w", id, err)
	}
	return r, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shift_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM shift_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
