package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Discovery is one row of the discoveries table.
type Discovery struct {
	ID         int64     `json:"id"`
	Terrain    string    `json:"terrain"`
	Science    string    `json:"science"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PlannerRun is one row of the planner_runs table.
type PlannerRun struct {
	ID         int64     `json:"id"`
	StartX     int       `json:"start_x"`
	StartY     int       `json:"start_y"`
	GoalX      int       `json:"goal_x"`
	GoalY      int       `json:"goal_y"`
	PathLen    int       `json:"path_len"`
	Iterations int       `json:"iterations"`
	Expansions int       `json:"expansions"`
	Outcome    string    `json:"outcome"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordDiscovery appends a discovery.
func (db *DB) RecordDiscovery(terrain, science string, x, y int, source string) error {
	_, err := db.Exec(
		`INSERT INTO discoveries (terrain, science, x, y, source, recorded_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		terrain, science, x, y, source, db.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record discovery: %w", err)
	}
	return nil
}

const discoveryColumns = `id, terrain, science, x, y, source, recorded_unix_nanos`

// RecentDiscoveries returns up to limit discoveries, newest first.
func (db *DB) RecentDiscoveries(limit int) ([]Discovery, error) {
	rows, err := db.Query(
		`SELECT `+discoveryColumns+` FROM discoveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanDiscoveries(rows)
}

// LatestByCell returns the newest discovery for every cell, ordered by row
// then column.
func (db *DB) LatestByCell() ([]Discovery, error) {
	rows, err := db.Query(`
		SELECT d.id, d.terrain, d.science, d.x, d.y, d.source, d.recorded_unix_nanos
		FROM discoveries d
		JOIN (SELECT MAX(id) AS id FROM discoveries GROUP BY x, y) latest ON d.id = latest.id
		ORDER BY d.y, d.x`)
	if err != nil {
		return nil, err
	}
	return scanDiscoveries(rows)
}

func scanDiscoveries(rows *sql.Rows) ([]Discovery, error) {
	defer rows.Close()

	var out []Discovery
	for rows.Next() {
		var (
			d     Discovery
			nanos int64
		)
		if err := rows.Scan(&d.ID, &d.Terrain, &d.Science, &d.X, &d.Y, &d.Source, &nanos); err != nil {
			return nil, err
		}
		d.RecordedAt = time.Unix(0, nanos)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordPlannerRun appends a planner run. RecordedAt is set by the database
// layer.
func (db *DB) RecordPlannerRun(run PlannerRun) error {
	_, err := db.Exec(
		`INSERT INTO planner_runs (
			start_x, start_y, goal_x, goal_y, path_len, iterations, expansions,
			outcome, recorded_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartX, run.StartY, run.GoalX, run.GoalY, run.PathLen, run.Iterations,
		run.Expansions, run.Outcome, db.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record planner run: %w", err)
	}
	return nil
}

// PlannerRuns returns up to limit runs, newest first.
func (db *DB) PlannerRuns(limit int) ([]PlannerRun, error) {
	rows, err := db.Query(`
		SELECT id, start_x, start_y, goal_x, goal_y, path_len, iterations,
			expansions, outcome, recorded_unix_nanos
		FROM planner_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlannerRun
	for rows.Next() {
		var (
			r     PlannerRun
			nanos int64
		)
		if err := rows.Scan(&r.ID, &r.StartX, &r.StartY, &r.GoalX, &r.GoalY, &r.PathLen,
			&r.Iterations, &r.Expansions, &r.Outcome, &nanos); err != nil {
			return nil, err
		}
		r.RecordedAt = time.Unix(0, nanos)
		out = append(out, r)
	}
	return out, rows.Err()
}
