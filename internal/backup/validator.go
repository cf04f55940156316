// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/voyagist/tripmaster/internal/i18n"
	"github.com/voyagist/tripmaster/internal/model"
)

// sqliteHeader is the literal file header every SQLite database starts with.
var sqliteHeader = []byte("SQLite format 3")

// Validate inspects uploaded archive bytes without mutating any live state.
// Expected failure modes (missing password, wrong password, malformed or
// unsafe archives) come back as Valid=false with a message; the error return
// is reserved for unexpected conditions like an unwritable temp directory.
func (e *Engine) Validate(ctx context.Context, data []byte, password string) (model.ValidationResult, error) {
	warnings := []string{}
	isEncrypted := IsEncrypted(data)

	payload := data
	if isEncrypted {
		if password == "" {
			// Distinct from "invalid": the caller should re-prompt.
			return model.ValidationResult{
				Valid:   false,
				Message: i18n.T("backup.password_required"),
				Metadata: &model.BackupManifest{
					BackupFormatVersion: "0.2.1+",
					IsPasswordProtected: true,
				},
				Warnings: []string{},
			}, nil
		}
		dec, err := Decrypt(data, password)
		if err != nil {
			return invalidResult(i18n.T("backup.invalid_password")), nil
		}
		payload = dec
	}

	// Reject unsafe member names before anything touches the filesystem.
	if err := checkMemberNames(payload); err != nil {
		if errors.Is(err, ErrUnsafePath) {
			return invalidResult(i18n.T("backup.unsafe_paths")), nil
		}
		return invalidResult(i18n.T("backup.corrupted")), nil
	}

	tempDir, err := os.MkdirTemp("", "tripmaster-validate-*")
	if err != nil {
		return model.ValidationResult{}, err
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := extractTarGz(payload, tempDir); err != nil {
		if errors.Is(err, ErrUnsafePath) {
			return invalidResult(i18n.T("backup.unsafe_paths")), nil
		}
		return invalidResult(i18n.T("backup.corrupted")), nil
	}

	dirs, err := topLevelDirs(tempDir)
	if err != nil {
		return model.ValidationResult{}, err
	}
	if len(dirs) == 0 {
		return invalidResult(i18n.T("backup.empty_archive")), nil
	}
	if len(dirs) > 1 {
		return invalidResult(i18n.T("backup.corrupted")), nil
	}
	backupDir := dirs[0]

	metadata, manifestWarnings, ok := readManifest(backupDir)
	if !ok {
		return invalidResult(i18n.T("backup.corrupted")), nil
	}
	warnings = append(warnings, manifestWarnings...)
	metadata.IsPasswordProtected = isEncrypted

	dbPath, ok := findDatabaseFile(backupDir)
	if !ok {
		return invalidResult(i18n.T("backup.no_database")), nil
	}
	header := make([]byte, len(sqliteHeader))
	f, err := os.Open(dbPath)
	if err != nil {
		return model.ValidationResult{}, err
	}
	n, _ := f.Read(header)
	_ = f.Close()
	if n < len(sqliteHeader) || !bytes.Equal(header, sqliteHeader) {
		return invalidResult(i18n.T("backup.bad_database_header")), nil
	}

	// Recompute sizes and checksum from the actual files; manifest-declared
	// values are advisory only.
	if fi, err := os.Stat(dbPath); err == nil {
		metadata.DBSizeBytes = fi.Size()
	}
	metadata.AvatarCount = countDirEntries(filepath.Join(backupDir, avatarDirName))
	if actual, err := fileChecksum(dbPath); err == nil {
		if metadata.Checksum != "" && metadata.Checksum != actual {
			warnings = append(warnings, i18n.T("backup.warning_checksum_mismatch"))
		}
		metadata.Checksum = actual
	}

	metadata.IntegrationConfigCount = 0
	if raw, err := os.ReadFile(filepath.Join(backupDir, configsFileName)); err == nil {
		var configs []model.IntegrationConfigExport
		if err := json.Unmarshal(raw, &configs); err != nil {
			return invalidResult(i18n.T("backup.corrupted")), nil
		}
		metadata.IntegrationConfigCount = len(configs)
	}

	// Never hand the raw legacy key back to callers.
	metadata.SecretKey = ""

	return model.ValidationResult{
		Valid:    true,
		Message:  i18n.T("backup.valid"),
		Metadata: &metadata,
		Warnings: warnings,
	}, nil
}

func invalidResult(message string) model.ValidationResult {
	return model.ValidationResult{Valid: false, Message: message, Warnings: []string{}}
}

// readManifest loads manifest.json from the extracted backup directory. A
// missing manifest is tolerated for legacy archives: a minimal one is
// synthesized and a warning recorded. Returns ok=false only for a manifest
// that exists but cannot be parsed.
func readManifest(backupDir string) (model.BackupManifest, []string, bool) {
	var warnings []string

	raw, err := os.ReadFile(filepath.Join(backupDir, manifestFileName))
	if err != nil {
		warnings = append(warnings, i18n.T("backup.warning_no_manifest"))
		return model.BackupManifest{
			BackupFormatVersion: "unknown",
			CreatedAt:           time.Now().UTC().Format(time.RFC3339),
			CreatedBy:           "unknown",
		}, warnings, true
	}

	var m model.BackupManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.BackupManifest{}, nil, false
	}
	if m.BackupFormatVersion == "" {
		// The oldest manifests used a bare "version" field.
		var aux struct {
			Version string `json:"version"`
		}
		_ = json.Unmarshal(raw, &aux)
		m.BackupFormatVersion = aux.Version
		if m.BackupFormatVersion == "" {
			m.BackupFormatVersion = "0.2.0"
		}
	}
	if m.SecretKey != "" {
		m.HasLegacySecretKey = true
		warnings = append(warnings, i18n.T("backup.warning_legacy"))
	}
	return m, warnings, true
}

// findDatabaseFile locates the database inside the backup directory: the
// canonical name first, then any .db file, so archives written under an
// older application name still restore.
func findDatabaseFile(backupDir string) (string, bool) {
	canonical := filepath.Join(backupDir, databaseFileName)
	if fileExists(canonical) {
		return canonical, true
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return "", false
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".db") {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return filepath.Join(backupDir, candidates[0]), true
}
