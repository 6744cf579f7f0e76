package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "kiddoquest_test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fsys, err := MigrationsFS("")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	if _, err := db.RunMigrations(context.Background(), fsys); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{
		"families", "family_members", "children", "penalty_rules", "applied_penalties",
		"offense_counters", "streaks", "family_goals", "quests", "quest_templates",
		"events", "analytics_reports", "daily_counters", "system_logs",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Running again applies nothing
	fsys, _ := MigrationsFS("")
	applied, err := db.RunMigrations(ctx, fsys)
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Second run applied %v, want none", applied)
	}
}

func TestRunInTxCommitsAndRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := db.RunInTx(ctx, 3, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO families (id, name, timezone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			"fam-1", "Smith", "UTC", now, now)
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx() error = %v", err)
	}

	boom := errors.New("boom")
	err = db.RunInTx(ctx, 3, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO families (id, name, timezone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			"fam-2", "Jones", "UTC", now, now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() error = %v, want boom", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM families").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 family after rollback, got %d", count)
	}
}

func TestRunInTxRetriesConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	attempts := 0
	err := db.RunInTx(ctx, 3, func(tx *Tx) error {
		attempts++
		if attempts < 3 {
			return ErrConflict
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("RunInTx() = %v after %d attempts, want success after 3", err, attempts)
	}

	attempts = 0
	err = db.RunInTx(ctx, 2, func(tx *Tx) error {
		attempts++
		return ErrConflict
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("RunInTx() error = %v, want ErrRetryExhausted", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

// Concurrent versioned read-modify-write on one row must not lose updates.
func TestRunInTxConcurrentVersionedUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := db.ExecContext(ctx, "INSERT INTO families (id, name, timezone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"fam-1", "Smith", "UTC", now, now); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO children (id, family_id, name, xp, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"child-1", "fam-1", "Anna", 0, 1, now, now); err != nil {
		t.Fatal(err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.RunInTx(ctx, 20, func(tx *Tx) error {
				var xp, version int
				if err := tx.QueryRowContext(ctx, "SELECT xp, version FROM children WHERE id = ?", "child-1").Scan(&xp, &version); err != nil {
					return err
				}
				res, err := tx.ExecContext(ctx, "UPDATE children SET xp = ?, version = version + 1 WHERE id = ? AND version = ?",
					xp+10, "child-1", version)
				if err != nil {
					return err
				}
				return ExpectOneRow(res)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("worker failed: %v", err)
		}
	}

	var xp int
	if err := db.QueryRowContext(ctx, "SELECT xp FROM children WHERE id = ?", "child-1").Scan(&xp); err != nil {
		t.Fatal(err)
	}
	if xp != workers*10 {
		t.Errorf("xp = %d, want %d", xp, workers*10)
	}
}

func TestIncrementCounterUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	for _, delta := range []int64{1, 4, 5} {
		if _, err := db.ExecContext(ctx, db.Dialect.IncrementCounterQuery(), "fam-1", "2024-06-01", "xp_earned", delta); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	var value int64
	err := db.QueryRowContext(ctx, "SELECT value FROM daily_counters WHERE family_id = ? AND day = ? AND name = ?",
		"fam-1", "2024-06-01", "xp_earned").Scan(&value)
	if err != nil {
		t.Fatal(err)
	}
	if value != 10 {
		t.Errorf("value = %d, want 10", value)
	}
}
