// Package database provides SQLite connectivity for the HVAC service.
//
// The database holds two kinds of data:
//   - unit_state_history: one row per observed status change of a unit
//   - mode_set_overrides: the active mode set and per-unit mode lists
//     changed at runtime, restored on the next start
//
// Live unit status is never stored here; it is rebuilt from the controller
// on every start.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Embedded schema migrations (see the migrations package)
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
//	history := hvac.NewSQLiteHistoryRepository(db.DB)
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
//   - Filenames are YYYYMMDD_HHMMSS_description.{up,down}.sql
package database
