// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import "errors"

// ErrPasswordTooShort is returned by Create when the backup password does not
// meet the minimum length.
var ErrPasswordTooShort = errors.New("backup password must be at least 8 characters")

// ErrPasswordRequired indicates an encrypted archive was submitted without a
// password. Callers should re-prompt rather than treat this as corruption.
var ErrPasswordRequired = errors.New("password required for encrypted backup")

// ErrDecryptionFailed indicates authentication of an envelope failed. A wrong
// password and corrupted ciphertext are indistinguishable here on purpose.
var ErrDecryptionFailed = errors.New("invalid password or corrupted backup")

// ErrUnsafePath indicates an archive member would escape the extraction
// directory.
var ErrUnsafePath = errors.New("archive contains unsafe paths")

// ErrRestoreInProgress is returned when a second restore is attempted while
// one is already running.
var ErrRestoreInProgress = errors.New("a restore is already in progress")
