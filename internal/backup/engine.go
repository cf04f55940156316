// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

// package backup implements the administrative backup/restore engine: a
// password-protected archive of the SQLite database, the avatar directory
// and the decrypted integration secrets, and the destructive-but-safe
// restore of such an archive on another instance.
package backup

import (
	"sync"

	"github.com/fernet/fernet-go"

	"github.com/voyagist/tripmaster/internal/config"
	"github.com/voyagist/tripmaster/internal/crypto"
)

const (
	archivePrefix    = "tripmaster_backup_"
	databaseFileName = "tripmaster.db"
	manifestFileName = "manifest.json"
	configsFileName  = "integration_configs.json"
	avatarDirName    = "avatars"
	timestampLayout  = "20060102_150405"

	minPasswordLength = 8
)

// Engine is the backup/restore engine. It holds the resolved configuration
// and the instance key; one Engine serves the whole process. opMu serializes
// create and restore: creation blocks until the lock frees, a second restore
// is rejected outright. The lock also covers the key swap a legacy restore
// performs, so Create never reads a half-updated key.
type Engine struct {
	cfg config.Config
	key *fernet.Key

	opMu sync.Mutex
}

// New builds an Engine for the given configuration.
func New(cfg config.Config) *Engine {
	return &Engine{
		cfg: cfg,
		key: crypto.InstanceKey(cfg.SecretKey),
	}
}
