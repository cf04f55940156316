// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
)

// Snapshot writes a transactionally consistent copy of the database at
// srcPath to destPath using SQLite's VACUUM INTO. Unlike a raw file copy this
// cannot capture a torn write while the application is serving traffic.
func Snapshot(ctx context.Context, srcPath, destPath string) error {
	// VACUUM INTO refuses to overwrite an existing file.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to clear snapshot destination: %w", err)
		}
	}

	return WithDB(ctx, srcPath, func(ctx context.Context, bdb *bun.DB) error {
		// The destination is a filesystem path, not a value; quote it for SQL.
		escaped := strings.ReplaceAll(destPath, "'", "''")
		if _, err := bdb.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
			return fmt.Errorf("failed to snapshot database: %w", err)
		}
		return nil
	})
}

// StripInstanceIdentity deletes all user and session rows from the database
// copy at dbPath. Backups carry instance data, never end-user identities;
// the operator's own row is preserved separately at restore time.
func StripInstanceIdentity(ctx context.Context, dbPath string) error {
	return WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
			// Sessions reference users, so they go first.
			if _, err := ExecRaw(ctx, tx, "DELETE FROM sessions"); err != nil {
				return fmt.Errorf("failed to clear sessions: %w", err)
			}
			if _, err := ExecRaw(ctx, tx, "DELETE FROM users"); err != nil {
				return fmt.Errorf("failed to clear users: %w", err)
			}
			return nil
		})
	})
}
