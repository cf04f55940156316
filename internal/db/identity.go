// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/voyagist/tripmaster/internal/model"
)

// GetUser reads a single user row from the database at dbPath. Returns
// (nil, nil) when no such user exists.
func GetUser(ctx context.Context, dbPath, id string) (*model.AdminUser, error) {
	var out *model.AdminUser
	err := WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		var u UserModel
		err := bdb.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		m := userModelToModel(u)
		out = &m
		return nil
	})
	return out, err
}

// RestoreAdminIdentity makes admin the sole user of the restored database at
// dbPath: all user rows are replaced with this one, every event and
// integration config is repointed to it, and all sessions are purged so
// everyone has to authenticate again.
func RestoreAdminIdentity(ctx context.Context, dbPath string, admin *model.AdminUser) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
			if _, err := ExecRaw(ctx, tx, "DELETE FROM users"); err != nil {
				return fmt.Errorf("failed to clear users: %w", err)
			}

			createdAt := admin.CreatedAt
			if createdAt == "" {
				createdAt = now
			}
			if _, err := ExecRaw(ctx, tx,
				"INSERT INTO users (id, username, email, hashed_password, role, is_admin, is_active, full_name, avatar_url, use_gravatar, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				admin.ID, admin.Username, admin.Email, admin.HashedPassword,
				admin.Role, true, true,
				nullableString(admin.FullName), nullableString(admin.AvatarURL),
				admin.UseGravatar, createdAt, now); err != nil {
				return fmt.Errorf("failed to insert admin user: %w", err)
			}

			if _, err := ExecRaw(ctx, tx, "UPDATE events SET user_id = ?", admin.ID); err != nil {
				return fmt.Errorf("failed to reassign events: %w", err)
			}
			if _, err := ExecRaw(ctx, tx, "UPDATE integration_configs SET created_by = ?", admin.ID); err != nil {
				return fmt.Errorf("failed to reassign integration configs: %w", err)
			}

			// Force re-authentication everywhere.
			if _, err := ExecRaw(ctx, tx, "DELETE FROM sessions"); err != nil {
				return fmt.Errorf("failed to clear sessions: %w", err)
			}
			return nil
		})
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
