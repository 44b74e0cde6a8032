package hvac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// History source values.
const (
	HistorySourcePoll    = "poll"
	HistorySourceCommand = "command"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one recorded status change of a unit.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	Unit      UnitID     `json:"unit"`
	Status    UnitStatus `json:"status"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryRepository stores and retrieves unit status history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record stores a status snapshot for a unit.
	Record(ctx context.Context, id UnitID, status UnitStatus, source string) error

	// GetHistory returns recent entries for a unit, newest first.
	// limit <= 0 selects the default; larger values are clamped.
	GetHistory(ctx context.Context, id UnitID, limit int) ([]HistoryEntry, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// unit_state_history table, storing each status as JSON.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository over db.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts a history row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Unit the status belongs to
//   - status: Snapshot to persist
//   - source: Origin of the change (poll, command); empty means poll
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Record(ctx context.Context, id UnitID, status UnitStatus, source string) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidUnitID, id)
	}
	if source == "" {
		source = HistorySourcePoll
	}

	stateJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO unit_state_history (unit_id, state, source) VALUES (?, ?, ?)",
		id.String(),
		string(stateJSON),
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting unit history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a unit ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Unit to query
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Entries ordered by created_at DESC (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, id UnitID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, state, source, created_at
		 FROM unit_state_history
		 WHERE unit_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		id.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unit history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		entry := HistoryEntry{Unit: id}
		var stateJSON, createdAt string

		if err := rows.Scan(&entry.ID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning unit history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.Status); err != nil {
			return nil, fmt.Errorf("unmarshalling status: %w", err)
		}
		entry.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unit history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns how many went.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM unit_state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting unit history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseTimestamp parses a timestamp stored by SQLite's strftime default.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}
