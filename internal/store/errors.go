// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package store

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

var errStoreClosed = errors.New("store closed")

// wrapError attaches the store error code for op. Unavailable failures carry
// ErrUnavailable in their chain.
func wrapError(op, key string, err error, unavailable bool) error {
	builder := oops.With("operation", op)
	if key != "" {
		builder = builder.With("key", key)
	}
	if unavailable {
		return builder.Code("STORE_UNAVAILABLE").Wrap(errors.Join(ErrUnavailable, err))
	}
	return builder.Code("STORE_FAILED").Wrap(err)
}

// isContextError reports whether err came from a cancelled or expired context.
func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
