// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth

import "github.com/samber/oops"

// Error codes raised by this package. Store failures keep the code assigned
// by the store package.
const (
	CodeHashFailed          = "HASH_FAILED"
	CodeHashInvalidEncoding = "HASH_INVALID_ENCODING"
	CodeHashParamsInvalid   = "HASH_PARAMS_INVALID"
	CodeServiceInvalid      = "SERVICE_INVALID"
)

func errServiceInvalid(format string, args ...any) error {
	return oops.Code(CodeServiceInvalid).Errorf(format, args...)
}
