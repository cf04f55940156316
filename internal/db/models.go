// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"

	"github.com/uptrace/bun"

	"github.com/voyagist/tripmaster/internal/model"
)

// UserModel maps the `users` table for Bun queries.
type UserModel struct {
	bun.BaseModel  `bun:"table:users"`
	ID             string         `bun:"id,pk"`
	Username       string         `bun:"username"`
	Email          string         `bun:"email"`
	HashedPassword string         `bun:"hashed_password"`
	Role           string         `bun:"role"`
	IsAdmin        bool           `bun:"is_admin"`
	IsActive       bool           `bun:"is_active"`
	FullName       sql.NullString `bun:"full_name"`
	AvatarURL      sql.NullString `bun:"avatar_url"`
	UseGravatar    bool           `bun:"use_gravatar"`
	CreatedAt      string         `bun:"created_at"`
	UpdatedAt      string         `bun:"updated_at"`
}

// SessionModel maps the `sessions` table.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions"`
	ID            string `bun:"id,pk"`
	UserID        string `bun:"user_id"`
	Token         string `bun:"token"`
	ExpiresAt     string `bun:"expires_at"`
	CreatedAt     string `bun:"created_at"`
}

// EventModel maps the subset of the `events` table the engine touches.
type EventModel struct {
	bun.BaseModel `bun:"table:events"`
	ID            string         `bun:"id,pk"`
	UserID        string         `bun:"user_id"`
	Name          string         `bun:"name"`
	Description   sql.NullString `bun:"description"`
	StartDate     string         `bun:"start_date"`
	EndDate       string         `bun:"end_date"`
	Status        string         `bun:"status"`
	CreatedAt     string         `bun:"created_at"`
	UpdatedAt     string         `bun:"updated_at"`
}

// IntegrationConfigModel maps the `integration_configs` table.
type IntegrationConfigModel struct {
	bun.BaseModel   `bun:"table:integration_configs"`
	ID              string `bun:"id,pk"`
	IntegrationType string `bun:"integration_type"`
	Name            string `bun:"name"`
	ConfigEncrypted string `bun:"config_encrypted"`
	IsActive        bool   `bun:"is_active"`
	CreatedBy       string `bun:"created_by"`
	CreatedAt       string `bun:"created_at"`
	UpdatedAt       string `bun:"updated_at"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

func userModelToModel(u UserModel) model.AdminUser {
	m := model.AdminUser{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		HashedPassword: u.HashedPassword,
		Role:           u.Role,
		IsAdmin:        u.IsAdmin,
		IsActive:       u.IsActive,
		UseGravatar:    u.UseGravatar,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if u.FullName.Valid {
		m.FullName = u.FullName.String
	}
	if u.AvatarURL.Valid {
		m.AvatarURL = u.AvatarURL.String
	}
	return m
}
