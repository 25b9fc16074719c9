// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

// Package auth registers and authenticates username/password credentials.
//
// # Hashing
//
// Passwords are stored as self-describing argon2id encodings produced by
// Argon2idHasher. Verification reads the cost parameters and salt from the
// encoding, so hashes created under older parameters keep verifying after the
// configured cost changes.
//
// # Service
//
// Service coordinates a CredentialStore and a PasswordHasher:
//   - Register - creates a record unless the username is taken
//   - Authenticate - checks a password against the stored record
//
// Both report a business Outcome. A non-nil error always means an
// infrastructure failure (store or hashing), never a rejected credential.
package auth
