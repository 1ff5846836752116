package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("path = %q, want %q", db.Path(), path)
	}
}

func TestReopenSkipsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	db.Close()
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.BeginRun("2026-03-14", false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if runID == 0 {
		t.Fatal("expected non-zero run id")
	}

	attempts := []Attempt{
		{URL: "https://a.com/1", Title: "One", Source: "A", Outcome: "published"},
		{URL: "https://a.com/2", Title: "Two", Source: "A", Outcome: "not_relevant"},
		{URL: "https://b.com/3", Title: "Three", Source: "B", Outcome: "failed", Detail: "generation error"},
	}
	for _, a := range attempts {
		if err := db.RecordAttempt(runID, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	if err := db.FinishRun(runID, 1, 3, 0); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.Published != 1 || r.Attempted != 3 || r.AbandonedSlots != 0 {
		t.Errorf("run counters = %+v", r)
	}
	if r.FinishedAt == "" {
		t.Error("expected finished_at to be set")
	}

	got, err := db.AttemptsForRun(runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(got))
	}
	if got[0].Outcome != "published" || got[2].Detail != "generation error" {
		t.Errorf("attempts out of order or incomplete: %+v", got)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	db.BeginRun("2026-03-13", false)
	db.BeginRun("2026-03-14", false)

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].Date != "2026-03-14" {
		t.Errorf("unexpected order: %+v", runs)
	}
}

func TestGetStatsIgnoresDryRuns(t *testing.T) {
	db := openTestDB(t)

	live, _ := db.BeginRun("2026-03-14", false)
	db.FinishRun(live, 2, 5, 1)

	dry, _ := db.BeginRun("2026-03-14", true)
	db.FinishRun(dry, 3, 3, 0)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Runs != 1 {
		t.Errorf("runs = %d, want 1", stats.Runs)
	}
	if stats.TotalPublished != 2 || stats.TotalAttempted != 5 {
		t.Errorf("totals = %+v", stats)
	}
	if stats.LastRunDate != "2026-03-14" {
		t.Errorf("last run = %q", stats.LastRunDate)
	}
}

func TestTodayMatchesRunDateFormat(t *testing.T) {
	db := openTestDB(t)

	date := Today(time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC))
	if date != "2026-03-14" {
		t.Fatalf("Today = %q", date)
	}

	if _, err := db.BeginRun(date, false); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	runs, err := db.RecentRuns(1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if runs[0].Date != date {
		t.Errorf("run_date = %q, want %q", runs[0].Date, date)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Runs != 0 || stats.LastRunDate != "" {
		t.Errorf("unexpected stats for empty archive: %+v", stats)
	}
}
