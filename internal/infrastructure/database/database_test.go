package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "hvac.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpenCreatesNestedPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "mhihvac", "hvac.db")
	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() error = nil, want error")
	}
}

// A :memory: database must survive across statements on the one connection.
func TestOpenInMemoryKeepsSchema(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath, WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE probe (unit_id TEXT NOT NULL)"); err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO probe (unit_id) VALUES (?)", "1-03"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	var got string
	if err := db.QueryRowContext(ctx, "SELECT unit_id FROM probe").Scan(&got); err != nil || got != "1-03" {
		t.Errorf("SELECT = %q, %v; want 1-03", got, err)
	}
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    []string
		notWant []string
	}{
		{
			name: "file with WAL",
			cfg:  Config{Path: "/data/hvac.db", WALMode: true, BusyTimeout: 5},
			want: []string{"file:/data/hvac.db?", "_busy_timeout=5000", "_foreign_keys=on", "_journal_mode=WAL"},
		},
		{
			name:    "memory ignores WAL",
			cfg:     Config{Path: MemoryPath, WALMode: true, BusyTimeout: 1},
			want:    []string{"file::memory:?", "_busy_timeout=1000"},
			notWant: []string{"_journal_mode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.dsn()
			for _, s := range tt.want {
				if !strings.Contains(dsn, s) {
					t.Errorf("dsn %q missing %q", dsn, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(dsn, s) {
					t.Errorf("dsn %q contains %q", dsn, s)
				}
			}
		})
	}
}

func TestConfigFrom(t *testing.T) {
	got := ConfigFrom(config.DatabaseConfig{
		Path:             "/var/lib/mhihvac/hvac.db",
		WALMode:          true,
		BusyTimeout:      5,
		HistoryRetention: 30,
	})
	want := Config{Path: "/var/lib/mhihvac/hvac.db", WALMode: true, BusyTimeout: 5}
	if got != want {
		t.Errorf("ConfigFrom() = %+v, want %+v", got, want)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close error = nil, want error")
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil handle error = %v", err)
	}
}

func TestTransactions(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE writes (unit_id TEXT, field TEXT)"); err != nil {
		t.Fatalf("CREATE: %v", err)
	}

	insert := func(field string, commit bool) {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO writes VALUES ('1-01', ?)", field); err != nil {
			t.Fatalf("INSERT: %v", err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("finishing tx: %v", err)
		}
	}
	insert("target", true)
	insert("mode", false)

	var fields []string
	rows, err := db.QueryContext(ctx, "SELECT field FROM writes")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			t.Fatal(err)
		}
		fields = append(fields, f)
	}
	if len(fields) != 1 || fields[0] != "target" {
		t.Errorf("rows = %v, want [target]", fields)
	}
}

func TestExecContextWrapsError(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	_, err := db.ExecContext(context.Background(), "INSERT INTO missing VALUES (1)")
	if err == nil {
		t.Fatal("ExecContext() error = nil, want error")
	}
	if !strings.HasPrefix(err.Error(), "executing query:") || errors.Unwrap(err) == nil {
		t.Errorf("error = %v, want wrapped executing query error", err)
	}
}
