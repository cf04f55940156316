// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"github.com/fernet/fernet-go"
)

// The envelope wire format is salt(16) || ciphertext. The salt length is
// fixed, which makes the boundary self-describing; any future change to this
// layout must allocate a new backup_format_version instead of bending it.

// IsEncrypted reports whether data is a password-protected envelope rather
// than a legacy plain tar.gz. Plain archives start with the gzip magic bytes.
func IsEncrypted(data []byte) bool {
	return !(len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b)
}

// Encrypt seals plaintext under a password-derived key and returns the
// complete envelope, salt prefix included.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	key := DeriveKey(password, salt)
	tok, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(salt)+len(tok))
	out = append(out, salt...)
	out = append(out, tok...)
	return out, nil
}

// Decrypt opens a salt-prefixed envelope. It returns ErrDecryptionFailed for
// both a wrong password and tampered or truncated ciphertext; the two cases
// are not distinguishable and must not become so.
func Decrypt(envelope []byte, password string) ([]byte, error) {
	if len(envelope) <= saltLength {
		return nil, ErrDecryptionFailed
	}
	salt, tok := envelope[:saltLength], envelope[saltLength:]
	key := DeriveKey(password, salt)
	msg := fernet.VerifyAndDecrypt(tok, 0, []*fernet.Key{key})
	if msg == nil {
		return nil, ErrDecryptionFailed
	}
	return msg, nil
}
