package archive

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is a single pipeline execution.
type Run struct {
	ID             int64
	Date           string
	Published      int
	Attempted      int
	AbandonedSlots int
	DryRun         bool
	CreatedAt      string
	FinishedAt     string
}

// Attempt records one candidate article and what became of it.
type Attempt struct {
	URL     string
	Title   string
	Source  string
	Outcome string
	Detail  string
}

// Stats summarizes the archive for the status command.
type Stats struct {
	Runs           int
	TotalPublished int
	TotalAttempted int
	LastRunDate    string
}

// BeginRun inserts a new run row and returns its id.
func (db *DB) BeginRun(date string, dryRun bool) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO runs (run_date, dry_run) VALUES (?, ?)",
		date, boolToInt(dryRun),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// RecordAttempt stores a single candidate outcome for a run.
func (db *DB) RecordAttempt(runID int64, a Attempt) error {
	_, err := db.conn.Exec(
		"INSERT INTO attempts (run_id, url, title, source, outcome, detail) VALUES (?, ?, ?, ?, ?, ?)",
		runID, a.URL, a.Title, a.Source, a.Outcome, a.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// FinishRun stamps the run row with its final counters.
func (db *DB) FinishRun(runID int64, published, attempted, abandonedSlots int) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET published = ?, attempted = ?, abandoned_slots = ?,
		 finished_at = datetime('now') WHERE id = ?`,
		published, attempted, abandonedSlots, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_date, published, attempted, abandoned_slots, dry_run,
		        created_at, COALESCE(finished_at, '')
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var dry int
		if err := rows.Scan(&r.ID, &r.Date, &r.Published, &r.Attempted,
			&r.AbandonedSlots, &dry, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.DryRun = dry != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AttemptsForRun returns the attempts of a run in insertion order.
func (db *DB) AttemptsForRun(runID int64) ([]Attempt, error) {
	rows, err := db.conn.Query(
		`SELECT url, COALESCE(title, ''), COALESCE(source, ''), outcome, COALESCE(detail, '')
		 FROM attempts WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.URL, &a.Title, &a.Source, &a.Outcome, &a.Detail); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetStats aggregates run totals for display.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := db.conn.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(published), 0), COALESCE(SUM(attempted), 0)
		 FROM runs WHERE dry_run = 0`,
	).Scan(&stats.Runs, &stats.TotalPublished, &stats.TotalAttempted)
	if err != nil {
		return nil, fmt.Errorf("aggregating runs: %w", err)
	}

	err = db.conn.QueryRow(
		"SELECT run_date FROM runs WHERE dry_run = 0 ORDER BY id DESC LIMIT 1",
	).Scan(&stats.LastRunDate)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading last run: %w", err)
	}

	return stats, nil
}

// Today formats a time the way run_date is stored.
func Today(t time.Time) string {
	return t.Format("2006-01-02")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
