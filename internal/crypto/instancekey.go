// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

// package crypto holds the instance-key encryption used for integration
// secrets at rest. The instance key is derived from the deployment secret
// and is distinct from the password protecting a backup archive.
package crypto

import (
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/fernet/fernet-go"

	"github.com/voyagist/tripmaster/internal/model"
)

// ErrDecrypt is returned when a stored ciphertext fails authentication.
// Wrong key and corrupted data are deliberately indistinguishable.
var ErrDecrypt = errors.New("decryption failed")

// InstanceKey derives the application-wide Fernet key from the deployment
// secret. The derivation (sha256 of the secret, used as the raw key) must
// stay stable across releases or stored integration configs become
// unreadable.
func InstanceKey(secret string) *fernet.Key {
	sum := sha256.Sum256([]byte(secret))
	k := fernet.Key(sum)
	return &k
}

// EncryptConfig serializes an integration configuration map to JSON and
// encrypts it under the given instance key. The returned token is safe to
// store as TEXT.
func EncryptConfig(cfg model.ConfigMap, key *fernet.Key) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(raw, key)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// DecryptConfig authenticates and decrypts a stored configuration token.
func DecryptConfig(token string, key *fernet.Key) (model.ConfigMap, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{key})
	if msg == nil {
		return nil, ErrDecrypt
	}
	var cfg model.ConfigMap
	if err := json.Unmarshal(msg, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
