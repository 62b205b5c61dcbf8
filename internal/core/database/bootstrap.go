package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// SchemaCapabilities records which optional columns exist in the deployed
// schema. It is probed once at startup and consulted thereafter instead of
// introspecting the schema on every query.
type SchemaCapabilities struct {
	// DocumentTimestampColumn is the column used to decide whether a
	// document is stalled: "last_updated" on current schemas, "updated_at"
	// on older ones, "uploaded_at" as last resort.
	DocumentTimestampColumn string
}

func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {

	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docmining_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		return runBootstrap(ctxBoot, db)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM docmining_meta WHERE version = 1)`).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db)
	}

	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// probeSchemaCapabilities inspects information_schema once so the stuck
// document sweep never has to guess column names at runtime. A missing
// optional column downgrades the capability instead of failing startup.
func probeSchemaCapabilities(ctx context.Context, db *sql.DB) (SchemaCapabilities, error) {
	caps := SchemaCapabilities{DocumentTimestampColumn: "uploaded_at"}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'documents' AND column_name IN ('last_updated', 'updated_at')
	`)
	if err != nil {
		return caps, fmt.Errorf("probe documents columns: %w", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return caps, err
		}
		present[col] = true
	}
	if err := rows.Err(); err != nil {
		return caps, err
	}

	switch {
	case present["last_updated"]:
		caps.DocumentTimestampColumn = "last_updated"
	case present["updated_at"]:
		caps.DocumentTimestampColumn = "updated_at"
	}
	return caps, nil
}
