// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// LogAction records an audit trail event in the database at dbPath.
func LogAction(ctx context.Context, dbPath, username, action, details string) error {
	return WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		_, err := bdb.NewInsert().Model(&AuditLogModel{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Username:  username,
			Action:    action,
			Details:   details,
		}).Exec(ctx)
		return err
	})
}

// GetAllAuditLogEntries retrieves all audit entries, most recent first.
func GetAllAuditLogEntries(ctx context.Context, dbPath string) ([]AuditLogModel, error) {
	var entries []AuditLogModel
	err := WithDB(ctx, dbPath, func(ctx context.Context, bdb *bun.DB) error {
		return bdb.NewSelect().Model(&entries).OrderExpr("id DESC").Scan(ctx)
	})
	return entries, err
}
