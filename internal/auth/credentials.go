// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth

import "log/slog"

// Credentials is the username/password pair carried by a register or login
// request. It is never persisted as-is.
type Credentials struct {
	Username string `json:"username" jsonschema:"required,title=Username"`
	Password string `json:"password" jsonschema:"required,title=Password"`
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("password", "[REDACTED]"),
	)
}
