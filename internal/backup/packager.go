// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/logging"
	"github.com/voyagist/tripmaster/internal/model"
)

// Create produces a password-protected backup archive of the current state
// and returns its bytes together with the suggested filename.
func (e *Engine) Create(ctx context.Context, username, password string) ([]byte, string, error) {
	if len(password) < minPasswordLength {
		return nil, "", ErrPasswordTooShort
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	name := archivePrefix + time.Now().UTC().Format(timestampLayout)
	plain, err := e.buildArchive(ctx, username, name, false)
	if err != nil {
		return nil, "", err
	}

	envelope, err := Encrypt(plain, password)
	if err != nil {
		return nil, "", err
	}

	if err := db.LogAction(ctx, e.cfg.DatabasePath, username, "BACKUP_CREATE", name); err != nil {
		logging.Warnf("failed to write audit entry for backup: %v", err)
	}
	return envelope, name + ".tar.gz.enc", nil
}

// buildArchive produces the plaintext tar.gz payload. When internal is true
// the snapshot keeps user and session rows and skips the integration-config
// export: a pre-restore safety copy is full state for manual recovery, not a
// portable backup.
func (e *Engine) buildArchive(ctx context.Context, username, name string, internal bool) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "tripmaster-backup-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	backupDir := filepath.Join(tempDir, name)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, err
	}

	dbCopy := filepath.Join(backupDir, databaseFileName)
	if fileExists(e.cfg.DatabasePath) {
		// Transactionally consistent copy; never a raw file copy.
		if err := db.Snapshot(ctx, e.cfg.DatabasePath, dbCopy); err != nil {
			return nil, err
		}

		if !internal {
			// The backup carries instance data, not identities. Strip before
			// exporting configs so foreign keys cannot get in the way.
			if err := db.StripInstanceIdentity(ctx, dbCopy); err != nil {
				return nil, err
			}

			// Export integration configs decrypted, while the current
			// instance key still applies to them.
			configs, err := db.ExportIntegrationConfigs(ctx, dbCopy, e.key)
			if err != nil {
				logging.Warnf("failed to export integration configs: %v", err)
				configs = nil
			}
			if configs == nil {
				configs = []model.IntegrationConfigExport{}
			}
			if err := writeJSON(filepath.Join(backupDir, configsFileName), configs); err != nil {
				return nil, err
			}
		}
	}

	if dirHasEntries(e.cfg.AvatarDir) {
		if err := copyDir(e.cfg.AvatarDir, filepath.Join(backupDir, avatarDirName)); err != nil {
			return nil, err
		}
	}

	manifest := model.BackupManifest{
		BackupFormatVersion: model.BackupFormatVersion,
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
		CreatedBy:           username,
		InternalBackup:      internal,
	}
	if fi, err := os.Stat(dbCopy); err == nil {
		manifest.DBSizeBytes = fi.Size()
		checksum, err := fileChecksum(dbCopy)
		if err != nil {
			return nil, err
		}
		manifest.Checksum = checksum
	}
	manifest.AvatarCount = countDirEntries(filepath.Join(backupDir, avatarDirName))

	if err := writeJSON(filepath.Join(backupDir, manifestFileName), manifest); err != nil {
		return nil, err
	}

	return tarGzDir(tempDir, name)
}

// Info reports what a backup taken right now would capture. Read-only.
func (e *Engine) Info() model.BackupInfo {
	info := model.BackupInfo{}
	if fi, err := os.Stat(e.cfg.DatabasePath); err == nil {
		info.DatabaseExists = true
		info.DatabaseSizeBytes = fi.Size()
	}
	info.AvatarCount = countDirEntries(e.cfg.AvatarDir)
	return info
}

// fileChecksum returns the hex SHA-256 of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// dirHasEntries reports whether dir exists and contains at least one entry.
func dirHasEntries(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// countDirEntries counts direct entries of dir; 0 when dir does not exist.
func countDirEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

// copyDir copies src recursively to dst.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("refusing to copy irregular file %s", path)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
