// Package database provides SQL connectivity for the telemetry history store.
//
// This package manages:
//   - SQLite (mattn/go-sqlite3) or PostgreSQL (pgx stdlib) behind database/sql
//   - Placeholder rebinding, so queries are written once with ?
//   - Schema migrations, one directory per dialect
//   - Duplicate-key detection across both drivers (IsDuplicate)
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite file permissions are set to 0600 (owner read/write only)
//   - PostgreSQL credentials belong in the DSN, set through the environment
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite3", Path: "./data/telemetry.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
//   - SQLite and PostgreSQL versions share a version number
package database
