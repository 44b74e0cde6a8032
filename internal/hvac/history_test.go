package hvac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the hvac tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE unit_state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			unit_id TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'poll',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE mode_set_overrides (
			scope TEXT NOT NULL CHECK (scope IN ('active', 'unit')),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (scope, key)
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func insertHistoryRow(t *testing.T, db *sql.DB, unitID, stateJSON string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO unit_state_history (unit_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		unitID, stateJSON, HistorySourcePoll, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

func TestHistory_RecordAndGet(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Record(ctx, uid(1, 1), coolStatus(), ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	heat := coolStatus()
	heat.Mode = ModeHeat
	if err := repo.Record(ctx, uid(1, 1), heat, HistorySourceCommand); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repo.Record(ctx, uid(1, 2), coolStatus(), ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, uid(1, 1), 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Status.Mode != ModeHeat || entries[0].Source != HistorySourceCommand {
		t.Errorf("newest entry = %+v, want heat from command", entries[0])
	}
	if entries[1].Source != HistorySourcePoll {
		t.Errorf("default source = %q, want poll", entries[1].Source)
	}
	if entries[0].Unit != uid(1, 1) || entries[0].CreatedAt.IsZero() {
		t.Errorf("entry identity = %+v", entries[0])
	}
}

func TestHistory_RecordInvalidUnit(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	if err := repo.Record(context.Background(), UnitID{}, coolStatus(), ""); err == nil {
		t.Error("Record(zero unit) error = nil, want error")
	}
}

func TestHistory_LimitAndPrune(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		insertHistoryRow(t, db, "1-01", `{"power":true,"hvac_mode":"cool"}`, now.Add(-time.Duration(i)*time.Hour))
	}
	insertHistoryRow(t, db, "1-01", `{"power":false}`, now.Add(-72*time.Hour))

	entries, err := repo.GetHistory(ctx, uid(1, 1), 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}

	deleted, err := repo.PruneHistory(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) error = nil, want error")
	}
}

func TestModeSetStore(t *testing.T) {
	store := NewSQLiteModeSetStore(setupTestDB(t))
	ctx := context.Background()

	if err := store.SaveActive(ctx, "Summer"); err != nil {
		t.Fatalf("SaveActive() error = %v", err)
	}
	if err := store.SaveActive(ctx, "Winter"); err != nil {
		t.Fatalf("SaveActive() error = %v", err)
	}
	if err := store.SaveUnitModes(ctx, uid(1, 2), []HVACMode{ModeCool, ModeDry}); err != nil {
		t.Fatalf("SaveUnitModes() error = %v", err)
	}
	if err := store.SaveUnitModes(ctx, uid(1, 2), []HVACMode{ModeHeat}); err != nil {
		t.Fatalf("SaveUnitModes() error = %v", err)
	}

	ov, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ov.Active != "Winter" {
		t.Errorf("Active = %q, want Winter", ov.Active)
	}
	modes := ov.Units[uid(1, 2)]
	if len(modes) != 1 || modes[0] != ModeHeat {
		t.Errorf("1-02 modes = %v, want [heat]", modes)
	}
}
