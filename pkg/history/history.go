// Package history stores measurements of past analysis runs in SQLite so
// launch times can be compared across builds.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pmtrace/perflog/pkg/output"
	"github.com/pmtrace/perflog/pkg/platform"
)

//go:embed schema.sql
var schema string

// DefaultLimit caps Query results when Filter.Limit is not set.
const DefaultLimit = 100

// Run is one analysis run.
type Run struct {
	ID           int64
	AnalyzedAt   time.Time
	ConfigFile   string
	Device       platform.Info
	Measurements []Measurement
}

// Measurement is one exported group of a run.
type Measurement struct {
	RunID      int64
	AnalyzedAt time.Time
	HWName     string
	BuildInfo  string
	Type       string
	Group      string
	ClockBegin float64
	Elapsed    float64
}

// Filter narrows Query and Summary. Empty fields match everything.
type Filter struct {
	Type   string
	Group  string
	HWName string
	Limit  int
}

// Summary aggregates the elapsed times of one type and group.
type Summary struct {
	Type  string
	Group string
	Count int
	Min   float64
	Avg   float64
	Max   float64
}

// RunFromReport converts the exported groups of report into a Run.
func RunFromReport(report *output.Report) Run {
	run := Run{
		AnalyzedAt: report.Metadata.AnalyzedAt,
		ConfigFile: report.Metadata.ConfigFile,
		Device:     report.Device,
	}
	for _, g := range report.Exported(nil) {
		run.Measurements = append(run.Measurements, Measurement{
			Type:       g.ReprType,
			Group:      g.ReprGroup,
			ClockBegin: g.ClockBegin(),
			Elapsed:    output.Round3(g.Elapsed()),
		})
	}
	return run
}

// Store is a SQLite-backed history.
type Store struct {
	conn *sql.DB
}

// New opens or creates the history database at path. ":memory:" gives a
// private in-memory store.
func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases and the per-connection
	// foreign_keys pragma consistent.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Record stores run and its measurements in one transaction and returns
// the new run id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	at := run.AnalyzedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC().Truncate(time.Second)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	d := run.Device
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (analyzed_at, config_file, hw_name, os_name, build_info, code_name, model_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at, run.ConfigFile, d.HWName, d.OSName, d.BuildInfo, d.CodeName, d.ModelName,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO measurements (run_id, perf_type, perf_group, clock_begin, elapsed)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, m := range run.Measurements {
		if _, err := stmt.ExecContext(ctx, runID, m.Type, m.Group, m.ClockBegin, m.Elapsed); err != nil {
			return 0, fmt.Errorf("inserting measurement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (f Filter) where() (string, []any) {
	clause := " WHERE 1=1"
	var args []any

	if f.Type != "" {
		clause += " AND m.perf_type = ?"
		args = append(args, f.Type)
	}
	if f.Group != "" {
		clause += " AND m.perf_group = ?"
		args = append(args, f.Group)
	}
	if f.HWName != "" {
		clause += " AND r.hw_name = ?"
		args = append(args, f.HWName)
	}
	return clause, args
}

// Query returns measurements matching filter, newest run first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Measurement, error) {
	where, args := filter.where()
	query := `SELECT m.run_id, r.analyzed_at, r.hw_name, r.build_info,
	                 m.perf_type, m.perf_group, m.clock_begin, m.elapsed
	          FROM measurements m JOIN runs r ON r.id = m.run_id` + where +
		` ORDER BY m.run_id DESC, m.id ASC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.RunID, &m.AnalyzedAt, &m.HWName, &m.BuildInfo,
			&m.Type, &m.Group, &m.ClockBegin, &m.Elapsed); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary returns per type and group statistics of matching measurements,
// ordered by type then group. Filter.Limit is ignored.
func (s *Store) Summary(ctx context.Context, filter Filter) ([]Summary, error) {
	where, args := filter.where()
	query := `SELECT m.perf_type, m.perf_group, COUNT(*), MIN(m.elapsed), AVG(m.elapsed), MAX(m.elapsed)
	          FROM measurements m JOIN runs r ON r.id = m.run_id` + where +
		` GROUP BY m.perf_type, m.perf_group ORDER BY m.perf_type, m.perf_group`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Type, &sum.Group, &sum.Count, &sum.Min, &sum.Avg, &sum.Max); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes runs older than olderThan, with their measurements.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Truncate(time.Second).Add(-olderThan)
	res, err := s.conn.ExecContext(ctx, "DELETE FROM runs WHERE analyzed_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}
