// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"

	"github.com/voyagist/tripmaster/internal/config"
	"github.com/voyagist/tripmaster/internal/crypto"
	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/model"
)

const testTimestamp = "2025-01-01T00:00:00Z"

// testInstance builds a migrated instance in a temp dir and returns its
// configuration. Nothing is seeded; use the seed helpers for that.
func testInstance(t *testing.T, secret string) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DatabasePath:  filepath.Join(dir, "tripmaster.db"),
		AvatarDir:     filepath.Join(dir, "avatars"),
		PreRestoreDir: filepath.Join(dir, "pre_restore"),
		SecretKey:     secret,
		Language:      "en",
		Source:        filepath.Join(dir, "tripmaster.yaml"),
	}
	if err := db.MigrateToHead(cfg.DatabasePath); err != nil {
		t.Fatalf("MigrateToHead failed: %v", err)
	}
	return cfg
}

func seedExec(t *testing.T, dbPath, query string, args ...any) {
	t.Helper()
	err := db.WithDB(context.Background(), dbPath, func(ctx context.Context, bdb *bun.DB) error {
		_, err := db.ExecRaw(ctx, bdb, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("seed exec failed: %v", err)
	}
}

func seedUser(t *testing.T, cfg config.Config, id, username string) {
	t.Helper()
	seedExec(t, cfg.DatabasePath,
		"INSERT INTO users (id, username, email, hashed_password, role, is_admin, is_active, use_gravatar, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, username, username+"@example.com", "hash-"+id, "admin", true, true, false, testTimestamp, testTimestamp)
}

func seedSession(t *testing.T, cfg config.Config, id, userID string) {
	t.Helper()
	seedExec(t, cfg.DatabasePath,
		"INSERT INTO sessions (id, user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)",
		id, userID, "tok-"+id, "2030-01-01T00:00:00Z", testTimestamp)
}

func seedEvent(t *testing.T, cfg config.Config, id, userID, name string) {
	t.Helper()
	seedExec(t, cfg.DatabasePath,
		"INSERT INTO events (id, user_id, name, start_date, end_date, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, userID, name, "2025-06-01", "2025-06-10", "planned", testTimestamp, testTimestamp)
}

func seedConfig(t *testing.T, cfg config.Config, id string, data model.ConfigMap) {
	t.Helper()
	tok, err := crypto.EncryptConfig(data, crypto.InstanceKey(cfg.SecretKey))
	if err != nil {
		t.Fatalf("EncryptConfig failed: %v", err)
	}
	seedExec(t, cfg.DatabasePath,
		"INSERT INTO integration_configs (id, integration_type, name, config_encrypted, is_active, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, "caldav", "cfg-"+id, tok, true, "u1", testTimestamp, testTimestamp)
}

func seedAvatar(t *testing.T, cfg config.Config, name string) {
	t.Helper()
	if err := os.MkdirAll(cfg.AvatarDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.AvatarDir, name), []byte("png-bytes-"+name), 0o644); err != nil {
		t.Fatal(err)
	}
}

// seededInstance is the standard scenario: one admin, three events, two
// integration configs and two avatars.
func seededInstance(t *testing.T, secret string) config.Config {
	t.Helper()
	cfg := testInstance(t, secret)
	seedUser(t, cfg, "u1", "admin")
	seedSession(t, cfg, "s1", "u1")
	seedEvent(t, cfg, "e1", "u1", "Paris")
	seedEvent(t, cfg, "e2", "u1", "Rome")
	seedEvent(t, cfg, "e3", "u1", "Tokyo")
	seedConfig(t, cfg, "c1", model.ConfigMap{"url": "https://cal.example.com"})
	seedConfig(t, cfg, "c2", model.ConfigMap{"api_key": "wx-123"})
	seedAvatar(t, cfg, "u1.png")
	seedAvatar(t, cfg, "u2.png")
	return cfg
}

func countRows(t *testing.T, dbPath, table string) int {
	t.Helper()
	var n int
	err := db.WithDB(context.Background(), dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return db.QueryRawInto(ctx, bdb, &n, "SELECT COUNT(*) FROM "+table)
	})
	if err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}
