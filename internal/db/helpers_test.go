// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"
)

const testTimestamp = "2025-01-01T00:00:00Z"

// newTestDB creates a migrated SQLite database in a temp dir and returns its path.
func newTestDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tripmaster.db")
	if err := MigrateToHead(dbPath); err != nil {
		t.Fatalf("MigrateToHead failed: %v", err)
	}
	return dbPath
}

func execTestSQL(t *testing.T, dbPath, query string, args ...any) {
	t.Helper()
	err := WithDB(context.Background(), dbPath, func(ctx context.Context, bdb *bun.DB) error {
		_, err := ExecRaw(ctx, bdb, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("exec %q failed: %v", query, err)
	}
}

func insertTestUser(t *testing.T, dbPath, id, username string) {
	t.Helper()
	execTestSQL(t, dbPath,
		"INSERT INTO users (id, username, email, hashed_password, role, is_admin, is_active, use_gravatar, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, username, username+"@example.com", "hash-"+id, "admin", true, true, false, testTimestamp, testTimestamp)
}

func insertTestSession(t *testing.T, dbPath, id, userID string) {
	t.Helper()
	execTestSQL(t, dbPath,
		"INSERT INTO sessions (id, user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)",
		id, userID, "tok-"+id, "2030-01-01T00:00:00Z", testTimestamp)
}

func insertTestEvent(t *testing.T, dbPath, id, userID, name string) {
	t.Helper()
	execTestSQL(t, dbPath,
		"INSERT INTO events (id, user_id, name, start_date, end_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, userID, name, "2025-06-01", "2025-06-10", "planned", testTimestamp, testTimestamp)
}

func insertTestConfig(t *testing.T, dbPath, id, encrypted, createdBy string) {
	t.Helper()
	execTestSQL(t, dbPath,
		"INSERT INTO integration_configs (id, integration_type, name, config_encrypted, is_active, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, "caldav", "cfg-"+id, encrypted, true, createdBy, testTimestamp, testTimestamp)
}

func countRows(t *testing.T, dbPath, table string) int {
	t.Helper()
	var n int
	err := WithDB(context.Background(), dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return QueryRawInto(ctx, bdb, &n, "SELECT COUNT(*) FROM "+table)
	})
	if err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}
