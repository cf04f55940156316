// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/fernet/fernet-go"
	"github.com/uptrace/bun"

	"github.com/voyagist/tripmaster/internal/crypto"
	"github.com/voyagist/tripmaster/internal/logging"
	"github.com/voyagist/tripmaster/internal/model"
)

// ExportIntegrationConfigs reads every integration configuration row from the
// database at dbPath and decrypts its stored ciphertext under key. Rows whose
// ciphertext fails to decrypt are exported with a nil ConfigData instead of
// aborting the export.
func ExportIntegrationConfigs(ctx context.Context, dbPath string, key *fernet.Key) ([]model.IntegrationConfigExport, error) {
	var out []model.IntegrationConfigExport
	err := WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		var rows []IntegrationConfigModel
		if err := bdb.NewSelect().Model(&rows).Scan(ctx); err != nil {
			return fmt.Errorf("failed to read integration configs: %w", err)
		}
		for _, r := range rows {
			exp := model.IntegrationConfigExport{
				ID:              r.ID,
				IntegrationType: r.IntegrationType,
				Name:            r.Name,
				IsActive:        r.IsActive,
				CreatedBy:       r.CreatedBy,
				CreatedAt:       r.CreatedAt,
				UpdatedAt:       r.UpdatedAt,
			}
			if r.ConfigEncrypted != "" {
				cfg, err := crypto.DecryptConfig(r.ConfigEncrypted, key)
				if err != nil {
					logging.Warnf("failed to decrypt config %s: %v", r.ID, err)
				} else {
					exp.ConfigData = cfg
				}
			}
			out = append(out, exp)
		}
		return nil
	})
	return out, err
}

// ReplaceIntegrationConfigs wipes the integration_configs table in the
// database at dbPath and reinserts the given exports, re-encrypting each
// plaintext config under key and rewriting ownership to adminID. Exports
// without config data, and rows that fail to re-encrypt or insert, are
// skipped and counted against the total. Returns the number imported.
func ReplaceIntegrationConfigs(ctx context.Context, dbPath string, configs []model.IntegrationConfigExport, key *fernet.Key, adminID string) (int, error) {
	imported := 0
	err := WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
			// The rows that came with the backup were encrypted under the
			// source instance's key and are unreadable here.
			if _, err := ExecRaw(ctx, tx, "DELETE FROM integration_configs"); err != nil {
				return fmt.Errorf("failed to clear integration configs: %w", err)
			}

			for _, cfg := range configs {
				if cfg.ConfigData == nil {
					logging.Warnf("skipping config %s (%s) - no config data", cfg.IntegrationType, cfg.ID)
					continue
				}
				encrypted, err := crypto.EncryptConfig(cfg.ConfigData, key)
				if err != nil {
					logging.Errorf("failed to re-encrypt config %s (%s): %v", cfg.IntegrationType, cfg.ID, err)
					continue
				}
				if _, err := ExecRaw(ctx, tx,
					"INSERT INTO integration_configs (id, integration_type, name, config_encrypted, is_active, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
					cfg.ID, cfg.IntegrationType, cfg.Name, encrypted, cfg.IsActive, adminID, cfg.CreatedAt, cfg.UpdatedAt); err != nil {
					logging.Errorf("failed to import config %s (%s): %v", cfg.IntegrationType, cfg.ID, err)
					continue
				}
				imported++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	dbLogf("db: imported %d/%d integration configs", imported, len(configs))
	return imported, nil
}

// CountIntegrationConfigs returns the number of integration configuration rows.
func CountIntegrationConfigs(ctx context.Context, dbPath string) (int, error) {
	var n int
	err := WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return QueryRawInto(ctx, bdb, &n, "SELECT COUNT(*) FROM integration_configs")
	})
	return n, err
}
