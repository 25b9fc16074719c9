// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Default argon2id parameters.
const (
	DefaultMemory     = 64 * 1024 // KiB
	DefaultIterations = 1
	DefaultThreads    = 4
	DefaultSaltLength = 32
	DefaultKeyLength  = 32

	minSaltLength = 8
	minKeyLength  = 4
	maxKeyLength  = 1 << 10
	maxMemory     = 1 << 21 // 2 GiB
	maxIterations = 1 << 10
	algorithmID   = "argon2id"
)

// Params are the argon2id cost parameters used for new hashes.
// Verification always uses the parameters embedded in the stored encoding.
type Params struct {
	Memory     uint32 `koanf:"memory" yaml:"memory"`
	Iterations uint32 `koanf:"iterations" yaml:"iterations"`
	Threads    uint8  `koanf:"threads" yaml:"threads"`
	SaltLength uint32 `koanf:"salt_length" yaml:"salt_length"`
	KeyLength  uint32 `koanf:"key_length" yaml:"key_length"`
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		Memory:     DefaultMemory,
		Iterations: DefaultIterations,
		Threads:    DefaultThreads,
		SaltLength: DefaultSaltLength,
		KeyLength:  DefaultKeyLength,
	}
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.SaltLength == 0 {
		p.SaltLength = d.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = d.KeyLength
	}
	return p
}

// Validate reports whether the parameters can produce a usable hash.
func (p Params) Validate() error {
	p = p.withDefaults()
	if p.SaltLength < minSaltLength {
		return oops.Code(CodeHashParamsInvalid).
			With("salt_length", p.SaltLength).
			Errorf("salt length must be at least %d bytes", minSaltLength)
	}
	if p.KeyLength < minKeyLength || p.KeyLength > maxKeyLength {
		return oops.Code(CodeHashParamsInvalid).
			With("key_length", p.KeyLength).
			Errorf("key length must be between %d and %d bytes", minKeyLength, maxKeyLength)
	}
	if p.Memory < 8*uint32(p.Threads) {
		return oops.Code(CodeHashParamsInvalid).
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("memory must be at least 8 KiB per thread")
	}
	if p.Memory > maxMemory {
		return oops.Code(CodeHashParamsInvalid).
			With("memory", p.Memory).
			Errorf("memory must be at most %d KiB", maxMemory)
	}
	if p.Iterations > maxIterations {
		return oops.Code(CodeHashParamsInvalid).
			With("iterations", p.Iterations).
			Errorf("iterations must be at most %d", maxIterations)
	}
	return nil
}

// PasswordHasher produces and checks self-describing password encodings.
type PasswordHasher interface {
	// Hash derives a salted encoding of password. A fresh salt is drawn on every call.
	Hash(password []byte) (string, error)

	// Verify reports whether password matches encoded. Malformed encodings
	// never match.
	Verify(encoded string, password []byte) bool
}

// Encoding is the parsed form of an argon2id PHC string.
type Encoding struct {
	Version    int
	Memory     uint32
	Iterations uint32
	Threads    uint8
	Salt       []byte
	Digest     []byte
}

// String renders the encoding in PHC form.
func (e *Encoding) String() string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		e.Version,
		e.Memory,
		e.Iterations,
		e.Threads,
		base64.RawStdEncoding.EncodeToString(e.Salt),
		base64.RawStdEncoding.EncodeToString(e.Digest),
	)
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Params
	rand   io.Reader
}

// NewArgon2idHasher creates a hasher. Zero-valued params fall back to defaults.
func NewArgon2idHasher(params Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params.withDefaults(), rand: rand.Reader}, nil
}

// Params returns the effective parameters used for new hashes.
func (h *Argon2idHasher) Params() Params {
	return h.params
}

// Hash produces an argon2id encoding of password.
func (h *Argon2idHasher) Hash(password []byte) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", oops.Code(CodeHashFailed).
			With("operation", "generate salt").
			Wrap(err)
	}

	enc := &Encoding{
		Version:    argon2.Version,
		Memory:     h.params.Memory,
		Iterations: h.params.Iterations,
		Threads:    h.params.Threads,
		Salt:       salt,
		Digest: argon2.IDKey(password, salt,
			h.params.Iterations, h.params.Memory, h.params.Threads, h.params.KeyLength),
	}
	return enc.String(), nil
}

// Verify recomputes the digest with the encoded parameters and compares in
// constant time.
func (h *Argon2idHasher) Verify(encoded string, password []byte) bool {
	enc, err := ParseEncoding(encoded)
	if err != nil {
		return false
	}

	computed := argon2.IDKey(password, enc.Salt,
		enc.Iterations, enc.Memory, enc.Threads, uint32(len(enc.Digest))) //nolint:gosec // length bounded by ParseEncoding
	return subtle.ConstantTimeCompare(computed, enc.Digest) == 1
}

// ParseEncoding parses an argon2id PHC string.
func ParseEncoding(encoded string) (*Encoding, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("invalid hash format")
	}

	if parts[1] != algorithmID {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("unsupported hash algorithm: %s", parts[1])
	}

	enc := &Encoding{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &enc.Version); err != nil {
		return nil, oops.Code(CodeHashInvalidEncoding).With("field", "version").Wrap(err)
	}
	if enc.Version != argon2.Version {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("unsupported argon2 version: %d", enc.Version)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &enc.Memory, &enc.Iterations, &threads); err != nil {
		return nil, oops.Code(CodeHashInvalidEncoding).With("field", "params").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("threads value %d out of range", threads)
	}
	enc.Threads = uint8(threads)
	if enc.Iterations == 0 || enc.Iterations > maxIterations ||
		enc.Memory < 8*threads || enc.Memory > maxMemory {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("cost parameters out of range")
	}

	var err error
	if enc.Salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code(CodeHashInvalidEncoding).With("field", "salt").Wrap(err)
	}
	if enc.Digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code(CodeHashInvalidEncoding).With("field", "digest").Wrap(err)
	}

	// Keeps the uint32 conversion in Verify safe.
	if n := len(enc.Digest); n < minKeyLength || n > maxKeyLength {
		return nil, oops.Code(CodeHashInvalidEncoding).Errorf("invalid digest length: %d", n)
	}

	return enc, nil
}
