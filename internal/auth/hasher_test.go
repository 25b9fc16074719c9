// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/pkg/errutil"
)

// fastParams keeps argon2 cheap in tests.
var fastParams = auth.Params{Memory: 64, Iterations: 1, Threads: 1}

func newFastHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(fastParams)
	require.NoError(t, err)
	return h
}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newFastHasher(t)

	t.Run("produces a PHC encoding", func(t *testing.T) {
		encoded, err := hasher.Hash([]byte("password123"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))

		enc, err := auth.ParseEncoding(encoded)
		require.NoError(t, err)
		assert.Len(t, enc.Salt, auth.DefaultSaltLength)
		assert.Len(t, enc.Digest, auth.DefaultKeyLength)
		assert.Equal(t, encoded, enc.String())
	})

	t.Run("same password gets a fresh salt", func(t *testing.T) {
		first, err := hasher.Hash([]byte("samepassword"))
		require.NoError(t, err)
		second, err := hasher.Hash([]byte("samepassword"))
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.True(t, hasher.Verify(first, []byte("samepassword")))
		assert.True(t, hasher.Verify(second, []byte("samepassword")))
	})

	t.Run("empty password is hashed", func(t *testing.T) {
		encoded, err := hasher.Hash([]byte(""))
		require.NoError(t, err)
		assert.True(t, hasher.Verify(encoded, []byte("")))
		assert.False(t, hasher.Verify(encoded, []byte(" ")))
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newFastHasher(t)
	encoded, err := hasher.Hash([]byte("correctpassword"))
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		assert.True(t, hasher.Verify(encoded, []byte("correctpassword")))
	})

	t.Run("wrong password", func(t *testing.T) {
		assert.False(t, hasher.Verify(encoded, []byte("wrongpassword")))
	})

	t.Run("uses parameters from the encoding", func(t *testing.T) {
		other, err := auth.NewArgon2idHasher(auth.Params{Memory: 128, Iterations: 2, Threads: 2, KeyLength: 16})
		require.NoError(t, err)
		assert.True(t, other.Verify(encoded, []byte("correctpassword")))
	})

	t.Run("tampered digest", func(t *testing.T) {
		enc, err := auth.ParseEncoding(encoded)
		require.NoError(t, err)
		enc.Digest[0] ^= 0xff
		assert.False(t, hasher.Verify(enc.String(), []byte("correctpassword")))
	})
}

func TestParseEncoding_Malformed(t *testing.T) {
	salt := base64.RawStdEncoding.EncodeToString([]byte("saltsaltsaltsalt"))
	digest := base64.RawStdEncoding.EncodeToString([]byte("digestdigestdigestdigestdigest32"))

	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"plaintext", "hunter2"},
		{"too few parts", "$argon2id$v=19$m=64,t=1,p=1$" + salt},
		{"wrong algorithm", "$argon2i$v=19$m=64,t=1,p=1$" + salt + "$" + digest},
		{"bad version field", "$argon2id$vXX$m=64,t=1,p=1$" + salt + "$" + digest},
		{"unsupported version", "$argon2id$v=16$m=64,t=1,p=1$" + salt + "$" + digest},
		{"bad params", "$argon2id$v=19$m=abc$" + salt + "$" + digest},
		{"zero threads", "$argon2id$v=19$m=64,t=1,p=0$" + salt + "$" + digest},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$" + salt + "$" + digest},
		{"zero iterations", "$argon2id$v=19$m=64,t=0,p=1$" + salt + "$" + digest},
		{"memory below minimum", "$argon2id$v=19$m=4,t=1,p=1$" + salt + "$" + digest},
		{"memory above maximum", "$argon2id$v=19$m=4294967295,t=1,p=1$" + salt + "$" + digest},
		{"iterations above ceiling", "$argon2id$v=19$m=2097152,t=4294967295,p=255$" + salt + "$" + digest},
		{"bad salt", "$argon2id$v=19$m=64,t=1,p=1$!!!$" + digest},
		{"bad digest", "$argon2id$v=19$m=64,t=1,p=1$" + salt + "$!!!"},
		{"short digest", "$argon2id$v=19$m=64,t=1,p=1$" + salt + "$AAA"},
		{"padded base64", "$argon2id$v=19$m=64,t=1,p=1$" + salt + "==$" + digest},
	}

	hasher := newFastHasher(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ParseEncoding(tt.encoded)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeHashInvalidEncoding)

			assert.False(t, hasher.Verify(tt.encoded, []byte("anything")))
		})
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  auth.Params
		wantErr bool
	}{
		{"defaults", auth.Params{}, false},
		{"fast", fastParams, false},
		{"short salt", auth.Params{SaltLength: 4}, true},
		{"memory below 8 KiB per thread", auth.Params{Memory: 16, Threads: 4}, true},
		{"memory above 2 GiB", auth.Params{Memory: 3 << 20, Iterations: 1, Threads: 1}, true},
		{"memory at 2 GiB", auth.Params{Memory: 1 << 21, Iterations: 1, Threads: 1}, false},
		{"key length too short", auth.Params{Memory: 64, Iterations: 1, Threads: 1, KeyLength: 2}, true},
		{"key length too long", auth.Params{Memory: 64, Iterations: 1, Threads: 1, KeyLength: 2048}, true},
		{"key length at bounds", auth.Params{Memory: 64, Iterations: 1, Threads: 1, KeyLength: 1024}, false},
		{"iterations above ceiling", auth.Params{Memory: 64, Iterations: 1<<10 + 1, Threads: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeHashParamsInvalid)

			_, err = auth.NewArgon2idHasher(tt.params)
			assert.Error(t, err)
		})
	}
}

func TestNewArgon2idHasher_FillsDefaults(t *testing.T) {
	h, err := auth.NewArgon2idHasher(auth.Params{Memory: 64, Threads: 1})
	require.NoError(t, err)

	p := h.Params()
	assert.Equal(t, uint32(64), p.Memory)
	assert.Equal(t, uint8(1), p.Threads)
	assert.Equal(t, uint32(auth.DefaultIterations), p.Iterations)
	assert.Equal(t, uint32(auth.DefaultSaltLength), p.SaltLength)
	assert.Equal(t, uint32(auth.DefaultKeyLength), p.KeyLength)
}

func TestArgon2idHasher_AcceptedParamsAlwaysVerify(t *testing.T) {
	for _, keyLength := range []uint32{4, 1024} {
		h, err := auth.NewArgon2idHasher(auth.Params{Memory: 64, Iterations: 1, Threads: 1, KeyLength: keyLength})
		require.NoError(t, err)

		encoded, err := h.Hash([]byte("s3cret"))
		require.NoError(t, err)

		_, err = auth.ParseEncoding(encoded)
		require.NoError(t, err, "key length %d", keyLength)
		assert.True(t, h.Verify(encoded, []byte("s3cret")), "key length %d", keyLength)
	}
}
