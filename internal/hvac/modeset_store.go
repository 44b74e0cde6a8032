package hvac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const (
	overrideScopeActive = "active"
	overrideScopeUnit   = "unit"

	// overrideKeyActive is the only key used with the active scope.
	overrideKeyActive = "site"
)

// ModeSetOverrides is what a restart must restore on top of configuration.
type ModeSetOverrides struct {
	// Active is the active named set, or "" if it was never changed at runtime.
	Active string

	// Units maps units whose explicit mode set was replaced at runtime.
	Units map[UnitID][]HVACMode
}

// ModeSetStore persists runtime mode-set changes.
type ModeSetStore interface {
	SaveActive(ctx context.Context, name string) error
	SaveUnitModes(ctx context.Context, id UnitID, modes []HVACMode) error
	Load(ctx context.Context) (ModeSetOverrides, error)
}

// SQLiteModeSetStore implements ModeSetStore on the mode_set_overrides table.
type SQLiteModeSetStore struct {
	db *sql.DB
}

// NewSQLiteModeSetStore creates a store over db.
func NewSQLiteModeSetStore(db *sql.DB) *SQLiteModeSetStore {
	return &SQLiteModeSetStore{db: db}
}

// SaveActive records the active named set.
func (s *SQLiteModeSetStore) SaveActive(ctx context.Context, name string) error {
	return s.upsert(ctx, overrideScopeActive, overrideKeyActive, name)
}

// SaveUnitModes records a replaced per-unit mode list.
func (s *SQLiteModeSetStore) SaveUnitModes(ctx context.Context, id UnitID, modes []HVACMode) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidUnitID, id)
	}
	raw, err := json.Marshal(modes)
	if err != nil {
		return fmt.Errorf("marshalling modes: %w", err)
	}
	return s.upsert(ctx, overrideScopeUnit, id.String(), string(raw))
}

func (s *SQLiteModeSetStore) upsert(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mode_set_overrides (scope, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(scope, key) DO UPDATE SET
		     value = excluded.value,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("saving mode set override: %w", err)
	}
	return nil
}

// Load reads every stored override. Rows that no longer parse are skipped.
func (s *SQLiteModeSetStore) Load(ctx context.Context) (ModeSetOverrides, error) {
	out := ModeSetOverrides{Units: make(map[UnitID][]HVACMode)}

	rows, err := s.db.QueryContext(ctx, "SELECT scope, key, value FROM mode_set_overrides")
	if err != nil {
		return out, fmt.Errorf("querying mode set overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope, key, value string
		if err := rows.Scan(&scope, &key, &value); err != nil {
			return out, fmt.Errorf("scanning mode set override: %w", err)
		}

		switch scope {
		case overrideScopeActive:
			out.Active = value
		case overrideScopeUnit:
			id, err := ParseUnitID(key)
			if err != nil {
				continue
			}
			var modes []HVACMode
			if err := json.Unmarshal([]byte(value), &modes); err != nil {
				continue
			}
			out.Units[id] = modes
		}
	}

	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterating mode set overrides: %w", err)
	}
	return out, nil
}
