// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/voyagist/tripmaster/internal/config"
	"github.com/voyagist/tripmaster/internal/crypto"
	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/i18n"
	"github.com/voyagist/tripmaster/internal/logging"
	"github.com/voyagist/tripmaster/internal/model"
)

// Restore replaces the live database and avatar directory with the contents
// of the given archive. adminID names the invoking administrator, whose
// account survives the restore. Expected failure modes come back as
// Success=false with a message; the error return is reserved for unexpected
// conditions like an unwritable temp directory.
func (e *Engine) Restore(ctx context.Context, data []byte, password, adminID string) (model.RestoreResult, error) {
	if !e.opMu.TryLock() {
		return failResult(i18n.T("restore.already_running")), nil
	}
	defer e.opMu.Unlock()

	// Capture the invoking admin before anything destructive happens. No
	// snapshot, no restore.
	admin, err := db.GetUser(ctx, e.cfg.DatabasePath, adminID)
	if err != nil || admin == nil {
		return failResult(i18n.T("restore.error_admin_snapshot")), nil
	}

	validation, err := e.Validate(ctx, data, password)
	if err != nil {
		return model.RestoreResult{}, err
	}
	if !validation.Valid {
		return failResult(validation.Message), nil
	}

	payload := data
	if IsEncrypted(data) {
		payload, err = Decrypt(data, password)
		if err != nil {
			return failResult(i18n.T("backup.invalid_password")), nil
		}
	}

	// Safety net: an unencrypted full snapshot of the current state,
	// written before the first destructive step. If it cannot be written
	// the restore does not proceed.
	if err := e.writePreRestoreSnapshot(ctx, admin.Username); err != nil {
		return failResult(i18n.T("restore.error_safety_net", err)), nil
	}

	tempDir, err := os.MkdirTemp("", "tripmaster-restore-*")
	if err != nil {
		return model.RestoreResult{}, err
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := extractTarGz(payload, tempDir); err != nil {
		return failResult(i18n.T("backup.corrupted")), nil
	}
	dirs, err := topLevelDirs(tempDir)
	if err != nil {
		return model.RestoreResult{}, err
	}
	if len(dirs) != 1 {
		return failResult(i18n.T("backup.corrupted")), nil
	}
	backupDir := dirs[0]

	// Read everything to import before touching live files.
	var configs []model.IntegrationConfigExport
	if raw, err := os.ReadFile(filepath.Join(backupDir, configsFileName)); err == nil {
		if err := json.Unmarshal(raw, &configs); err != nil {
			logging.Warnf("could not parse %s, skipping config import: %v", configsFileName, err)
			configs = nil
		}
	}
	legacyKey := ""
	if raw, err := os.ReadFile(filepath.Join(backupDir, manifestFileName)); err == nil {
		var m model.BackupManifest
		if err := json.Unmarshal(raw, &m); err == nil {
			legacyKey = m.SecretKey
		}
	}

	newDB, ok := findDatabaseFile(backupDir)
	if !ok {
		return failResult(i18n.T("backup.no_database")), nil
	}
	if err := replaceFile(newDB, e.cfg.DatabasePath); err != nil {
		return model.RestoreResult{}, err
	}

	// Avatar state is replaced wholesale: an archive without avatars
	// restores to an instance without avatars.
	if err := os.RemoveAll(e.cfg.AvatarDir); err != nil {
		return model.RestoreResult{}, err
	}
	avatarSrc := filepath.Join(backupDir, avatarDirName)
	if fi, err := os.Stat(avatarSrc); err == nil && fi.IsDir() {
		if err := copyDir(avatarSrc, e.cfg.AvatarDir); err != nil {
			return model.RestoreResult{}, err
		}
	} else if err := os.MkdirAll(e.cfg.AvatarDir, 0o755); err != nil {
		return model.RestoreResult{}, err
	}

	// Bring an older archive's schema up to date. Not fatal: a restored
	// database at head is already usable.
	details := model.RestoreDetails{}
	if err := db.MigrateToHead(e.cfg.DatabasePath); err != nil {
		details.MigrationsMessage = i18n.T("migrations.failed", err)
		logging.Warnf("migrations after restore failed: %v", err)
	} else {
		details.MigrationsRun = true
		details.MigrationsMessage = i18n.T("migrations.success")
	}

	if len(configs) > 0 {
		imported, err := db.ReplaceIntegrationConfigs(ctx, e.cfg.DatabasePath, configs, e.key, admin.ID)
		if err != nil {
			logging.Warnf("could not import integration configs: %v", err)
		} else {
			details.ConfigsImported = imported
		}
	} else if legacyKey != "" {
		// Legacy archive: its integration secrets are still encrypted
		// inside the database under the original key, so this instance
		// adopts that key instead.
		if err := config.UpdateSecretKey(e.cfg.Source, legacyKey); err != nil {
			logging.Warnf("could not persist legacy secret key: %v", err)
		} else {
			e.cfg.SecretKey = legacyKey
			e.key = crypto.InstanceKey(legacyKey)
			details.MigrationsMessage += i18n.T("restore.legacy_key_note")
		}
	}

	// The restored database carries the source instance's identities.
	// Replace them with the invoking admin so the instance stays
	// reachable. Failing here is fatal.
	if err := db.RestoreAdminIdentity(ctx, e.cfg.DatabasePath, admin); err != nil {
		return failResult(i18n.T("restore.error_admin_reinsert", err)), nil
	}

	if err := db.LogAction(ctx, e.cfg.DatabasePath, admin.Username, "BACKUP_RESTORE", filepath.Base(backupDir)); err != nil {
		logging.Warnf("failed to write audit entry for restore: %v", err)
	}

	return model.RestoreResult{Success: true, Message: i18n.T("restore.success"), Details: details}, nil
}

func failResult(message string) model.RestoreResult {
	return model.RestoreResult{Success: false, Message: message}
}

// writePreRestoreSnapshot stores an unencrypted full snapshot, users and
// sessions included, under the pre-restore directory for manual recovery.
func (e *Engine) writePreRestoreSnapshot(ctx context.Context, username string) error {
	name := "pre_restore_" + time.Now().UTC().Format(timestampLayout)
	data, err := e.buildArchive(ctx, username, name, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.PreRestoreDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.cfg.PreRestoreDir, name+".tar.gz"), data, 0o600)
}

// replaceFile installs src as dst via copy plus same-directory rename, and
// drops any stale WAL/SHM sidecars that would no longer match the new file.
func replaceFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".restore-tmp"
	if err := copyFile(src, tmp); err != nil {
		return err
	}
	_ = os.Remove(dst + "-wal")
	_ = os.Remove(dst + "-shm")
	return os.Rename(tmp, dst)
}
