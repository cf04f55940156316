// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows OWASP guidance for PBKDF2-SHA256. Raising it
	// requires a new backup_format_version; existing archives bake it in.
	pbkdf2Iterations = 480_000
	saltLength       = 16
)

// DeriveKey turns a password and a 16-byte salt into the archive encryption
// key via PBKDF2-HMAC-SHA256. Deterministic for the same (password, salt);
// salts are never reused across archives.
func DeriveKey(password string, salt []byte) *fernet.Key {
	raw := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	var k fernet.Key
	copy(k[:], raw)
	return &k
}

// newSalt returns a fresh random salt for one archive.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
