// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.
package model

// BackupFormatVersion is the manifest format version written by the current code.
// Older archives carry "0.2.0" (raw secret key, unencrypted) and are still accepted.
const BackupFormatVersion = "0.2.2"

// BackupManifest is the metadata record embedded as manifest.json in every
// archive. Validators recompute DBSizeBytes and AvatarCount from the actual
// files rather than trusting the stored values.
type BackupManifest struct {
	BackupFormatVersion string `json:"backup_format_version"`
	CreatedAt           string `json:"created_at"`
	CreatedBy           string `json:"created_by"`
	DBSizeBytes         int64  `json:"db_size_bytes"`
	AvatarCount         int    `json:"avatar_count"`
	Checksum            string `json:"checksum"`

	// SecretKey is only present in legacy (pre password-protection) archives.
	SecretKey string `json:"secret_key,omitempty"`

	// InternalBackup marks unencrypted pre-restore safety snapshots.
	InternalBackup bool `json:"internal_backup,omitempty"`

	// Fields below are filled in by the validator, not stored at create time.
	IsPasswordProtected    bool `json:"is_password_protected,omitempty"`
	HasLegacySecretKey     bool `json:"has_legacy_secret_key,omitempty"`
	IntegrationConfigCount int  `json:"integration_config_count"`
}

// ConfigMap holds one integration's decrypted configuration. The engine is
// integration-agnostic, so values stay generic JSON types.
type ConfigMap map[string]any

// IntegrationConfigExport is one third-party integration's configuration as
// exported into integration_configs.json. ConfigData is nil when the stored
// ciphertext could not be decrypted at create time.
type IntegrationConfigExport struct {
	ID              string    `json:"id"`
	IntegrationType string    `json:"integration_type"`
	Name            string    `json:"name"`
	ConfigData      ConfigMap `json:"config_data"`
	IsActive        bool      `json:"is_active"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
}

// AdminUser is the invoking administrator's row, captured from the live
// database before a destructive restore and reinserted afterwards.
type AdminUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	HashedPassword string `json:"hashed_password"`
	Role           string `json:"role"`
	IsAdmin        bool   `json:"is_admin"`
	IsActive       bool   `json:"is_active"`
	FullName       string `json:"full_name,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	UseGravatar    bool   `json:"use_gravatar"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// BackupInfo describes the current live state that a backup would capture.
type BackupInfo struct {
	DatabaseExists    bool  `json:"database_exists"`
	DatabaseSizeBytes int64 `json:"database_size_bytes"`
	AvatarCount       int   `json:"avatar_count"`
}

// ValidationResult is the structured outcome of validating uploaded bytes.
// Expected failure modes (bad password, corrupt file) come back as
// Valid=false with a message, never as an error.
type ValidationResult struct {
	Valid    bool            `json:"valid"`
	Message  string          `json:"message"`
	Metadata *BackupManifest `json:"metadata"`
	Warnings []string        `json:"warnings"`
}

// RestoreDetails carries the per-step outcome of a restore.
type RestoreDetails struct {
	MigrationsRun     bool   `json:"migrations_run"`
	MigrationsMessage string `json:"migrations_message"`
	ConfigsImported   int    `json:"configs_imported"`
}

// RestoreResult is the structured outcome of a restore attempt.
type RestoreResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details RestoreDetails `json:"details"`
}
