// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voyagist/tripmaster/internal/crypto"
	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/i18n"
)

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	// Source instance: the standard scenario.
	source := seededInstance(t, "source-secret")
	data, _, err := New(source).Create(ctx, "admin", testPassword)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Target instance with its own admin, data and key.
	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	seedSession(t, target, "ts1", "t1")
	seedEvent(t, target, "te1", "t1", "Old Trip")
	seedAvatar(t, target, "told.png")
	eng := New(target)

	result, err := eng.Restore(ctx, data, testPassword, "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if !result.Details.MigrationsRun {
		t.Errorf("expected migrations to run: %+v", result.Details)
	}
	if result.Details.ConfigsImported != 2 {
		t.Errorf("expected 2 configs imported, got %d", result.Details.ConfigsImported)
	}

	// Source events replaced the target's.
	if n := countRows(t, target.DatabasePath, "events"); n != 3 {
		t.Errorf("expected 3 events after restore, got %d", n)
	}

	// The invoking admin is the sole user, sessions are gone.
	if n := countRows(t, target.DatabasePath, "users"); n != 1 {
		t.Errorf("expected exactly 1 user, got %d", n)
	}
	admin, err := db.GetUser(ctx, target.DatabasePath, "t1")
	if err != nil || admin == nil || admin.Username != "target-admin" {
		t.Fatalf("target admin not preserved: %+v (%v)", admin, err)
	}
	if n := countRows(t, target.DatabasePath, "sessions"); n != 0 {
		t.Errorf("expected sessions purged, got %d", n)
	}

	// Configs are decryptable under the target's key and owned by t1.
	exports, err := db.ExportIntegrationConfigs(ctx, target.DatabasePath, crypto.InstanceKey(target.SecretKey))
	if err != nil {
		t.Fatalf("ExportIntegrationConfigs failed: %v", err)
	}
	if len(exports) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(exports))
	}
	for _, e := range exports {
		if e.ConfigData == nil {
			t.Errorf("config %s not decryptable under target key", e.ID)
		}
		if e.CreatedBy != "t1" {
			t.Errorf("config %s not owned by t1: %q", e.ID, e.CreatedBy)
		}
	}

	// Avatars were replaced wholesale.
	if _, err := os.Stat(filepath.Join(target.AvatarDir, "u1.png")); err != nil {
		t.Errorf("restored avatar missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target.AvatarDir, "told.png")); err == nil {
		t.Error("old avatar should have been removed")
	}

	// A safety snapshot landed in the pre-restore directory.
	entries, err := os.ReadDir(target.PreRestoreDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 pre-restore snapshot, got %v (%v)", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "pre_restore_") || !strings.HasSuffix(entries[0].Name(), ".tar.gz") {
		t.Errorf("unexpected snapshot name %q", entries[0].Name())
	}

	// The restore was audited.
	audits, err := db.GetAllAuditLogEntries(ctx, target.DatabasePath)
	if err != nil {
		t.Fatalf("GetAllAuditLogEntries failed: %v", err)
	}
	found := false
	for _, a := range audits {
		if a.Action == "BACKUP_RESTORE" && a.Username == "target-admin" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected BACKUP_RESTORE audit entry, got %+v", audits)
	}
}

func TestPreRestoreSnapshotKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	source := seededInstance(t, "source-secret")
	data, _, err := New(source).Create(ctx, "admin", testPassword)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	seedSession(t, target, "ts1", "t1")
	if result, err := New(target).Restore(ctx, data, testPassword, "t1"); err != nil || !result.Success {
		t.Fatalf("Restore failed: %+v (%v)", result, err)
	}

	entries, err := os.ReadDir(target.PreRestoreDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected snapshot, got %v (%v)", entries, err)
	}
	payload, err := os.ReadFile(filepath.Join(target.PreRestoreDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if IsEncrypted(payload) {
		t.Fatal("safety snapshot must be a plain archive")
	}

	dest := t.TempDir()
	if err := extractTarGz(payload, dest); err != nil {
		t.Fatalf("extractTarGz failed: %v", err)
	}
	dirs, _ := topLevelDirs(dest)
	if len(dirs) != 1 {
		t.Fatalf("expected single dir, got %v", dirs)
	}

	// Unlike portable backups the safety copy keeps users and sessions.
	snapDB := filepath.Join(dirs[0], "tripmaster.db")
	if n := countRows(t, snapDB, "users"); n != 1 {
		t.Errorf("expected user kept in safety snapshot, got %d", n)
	}
	if n := countRows(t, snapDB, "sessions"); n != 1 {
		t.Errorf("expected session kept in safety snapshot, got %d", n)
	}

	var manifest map[string]any
	raw, err := os.ReadFile(filepath.Join(dirs[0], "manifest.json"))
	if err != nil {
		t.Fatalf("snapshot manifest missing: %v", err)
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest["internal_backup"] != true {
		t.Errorf("snapshot manifest must be marked internal: %v", manifest)
	}
}

func TestRestoreUnknownAdmin(t *testing.T) {
	ctx := context.Background()
	source := seededInstance(t, "source-secret")
	data, _, err := New(source).Create(ctx, "admin", testPassword)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	target := testInstance(t, "target-secret")
	result, err := New(target).Restore(ctx, data, testPassword, "nobody")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.Success || result.Message != i18n.T("restore.error_admin_snapshot") {
		t.Errorf("expected admin-snapshot failure, got %+v", result)
	}
}

func TestRestoreWrongPasswordLeavesTargetUntouched(t *testing.T) {
	ctx := context.Background()
	source := seededInstance(t, "source-secret")
	data, _, err := New(source).Create(ctx, "admin", testPassword)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	seedEvent(t, target, "te1", "t1", "Old Trip")

	result, err := New(target).Restore(ctx, data, "wrong password", "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.Success || result.Message != i18n.T("backup.invalid_password") {
		t.Errorf("expected invalid-password failure, got %+v", result)
	}

	if n := countRows(t, target.DatabasePath, "events"); n != 1 {
		t.Errorf("target events must be untouched, got %d", n)
	}
	if _, err := os.Stat(target.PreRestoreDir); err == nil {
		t.Error("no safety snapshot should be written for a rejected archive")
	}
}

func TestRestoreRejectsConcurrentRun(t *testing.T) {
	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	eng := New(target)

	eng.opMu.Lock()
	defer eng.opMu.Unlock()

	result, err := eng.Restore(context.Background(), []byte{0x1f, 0x8b}, "", "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.Success || result.Message != i18n.T("restore.already_running") {
		t.Errorf("expected already-running rejection, got %+v", result)
	}
}

func TestCreateWaitsForRunningRestore(t *testing.T) {
	source := seededInstance(t, "source-secret")
	eng := New(source)

	// Hold the operation lock the way an in-flight restore would.
	eng.opMu.Lock()
	done := make(chan error, 1)
	go func() {
		_, _, err := eng.Create(context.Background(), "admin", testPassword)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Create must not proceed while the operation lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	eng.opMu.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("Create failed after the lock was released: %v", err)
	}
}

func TestRestoreWithoutAvatarsClearsAvatarDir(t *testing.T) {
	ctx := context.Background()

	// Source instance with data but no avatar directory at all.
	source := testInstance(t, "source-secret")
	seedUser(t, source, "u1", "admin")
	seedEvent(t, source, "e1", "u1", "Trip")
	data, _, err := New(source).Create(ctx, "admin", testPassword)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	seedAvatar(t, target, "stale.png")

	result, err := New(target).Restore(ctx, data, testPassword, "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}

	if _, err := os.Stat(filepath.Join(target.AvatarDir, "stale.png")); err == nil {
		t.Error("stale avatar must not survive a restore without avatars")
	}
	entries, err := os.ReadDir(target.AvatarDir)
	if err != nil {
		t.Fatalf("avatar directory must exist after restore: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty avatar directory, got %v", entries)
	}
}

func TestRestoreLegacyArchiveInstallsKey(t *testing.T) {
	ctx := context.Background()

	// A legacy archive: plain tar.gz, manifest carries the raw secret key,
	// and the database file still has its old name.
	legacyDB := sqliteFixture(t)
	manifest, _ := json.Marshal(map[string]any{
		"version":    "0.2.0",
		"created_at": testTimestamp,
		"created_by": "admin",
		"secret_key": "legacy-instance-key",
	})
	payload := buildArchiveDir(t, "travel_backup", map[string][]byte{
		"manifest.json":     manifest,
		"travel_manager.db": legacyDB,
	})

	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	if err := os.WriteFile(target.Source, []byte("secret_key: target-secret\nlanguage: en\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	eng := New(target)

	result, err := eng.Restore(ctx, payload, "", "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if !strings.Contains(result.Details.MigrationsMessage, strings.TrimSpace(i18n.T("restore.legacy_key_note"))) {
		t.Errorf("expected legacy key note in migrations message, got %q", result.Details.MigrationsMessage)
	}

	raw, err := os.ReadFile(target.Source)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "legacy-instance-key") {
		t.Errorf("legacy key not persisted to config: %s", raw)
	}

	// The admin survived into the legacy database.
	admin, err := db.GetUser(ctx, target.DatabasePath, "t1")
	if err != nil || admin == nil || admin.Username != "target-admin" {
		t.Fatalf("admin not preserved: %+v (%v)", admin, err)
	}
}

func TestRestorePrefersConfigImportOverLegacyKey(t *testing.T) {
	ctx := context.Background()

	// An archive carrying both a config export and a manifest secret key.
	// The export wins; the key stays untouched.
	manifest, _ := json.Marshal(map[string]any{
		"version":    "0.2.0",
		"created_at": testTimestamp,
		"created_by": "admin",
		"secret_key": "legacy-instance-key",
	})
	configs, _ := json.Marshal([]map[string]any{{
		"id":               "c1",
		"integration_type": "smtp",
		"name":             "Mail",
		"config_data":      map[string]any{"host": "mail.example.com"},
		"is_active":        true,
		"created_by":       "admin",
		"created_at":       testTimestamp,
		"updated_at":       testTimestamp,
	}})
	payload := buildArchiveDir(t, "travel_backup", map[string][]byte{
		"manifest.json":            manifest,
		"integration_configs.json": configs,
		"travel_manager.db":        sqliteFixture(t),
	})

	target := testInstance(t, "target-secret")
	seedUser(t, target, "t1", "target-admin")
	if err := os.WriteFile(target.Source, []byte("secret_key: target-secret\nlanguage: en\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := New(target).Restore(ctx, payload, "", "t1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.Details.ConfigsImported != 1 {
		t.Errorf("expected 1 config imported, got %d", result.Details.ConfigsImported)
	}
	if strings.Contains(result.Details.MigrationsMessage, strings.TrimSpace(i18n.T("restore.legacy_key_note"))) {
		t.Error("legacy key note must not appear when configs are imported")
	}

	// The instance key stays the target's; the imported config decrypts
	// under it.
	raw, err := os.ReadFile(target.Source)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "legacy-instance-key") {
		t.Errorf("legacy key must not be persisted: %s", raw)
	}
	exports, err := db.ExportIntegrationConfigs(ctx, target.DatabasePath, crypto.InstanceKey(target.SecretKey))
	if err != nil {
		t.Fatalf("ExportIntegrationConfigs failed: %v", err)
	}
	if len(exports) != 1 || exports[0].ConfigData == nil {
		t.Fatalf("imported config not readable under target key: %+v", exports)
	}
	if exports[0].ConfigData["host"] != "mail.example.com" {
		t.Errorf("unexpected config data: %v", exports[0].ConfigData)
	}
}
