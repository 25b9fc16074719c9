// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// CredentialStore is the subset of a key/value store the service needs.
// Keys are usernames and values are hash encodings.
type CredentialStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Get(ctx context.Context, key string) (value string, found bool, err error)
}

// Service registers and authenticates credentials.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	recorder OutcomeRecorder
	logger   *slog.Logger
	conceal  bool

	// dummy is verified when the user is unknown so that unknown and known
	// usernames cost the same hashing work.
	dummy string
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports every outcome to r.
func WithRecorder(r OutcomeRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcealUnknownUsers reports unknown usernames as
// OutcomeInvalidCredentials so responses do not reveal which usernames exist.
func WithConcealUnknownUsers(conceal bool) Option {
	return func(s *Service) {
		s.conceal = conceal
	}
}

// dummyPassword seeds the dummy encoding. Its verify result is discarded.
const dummyPassword = "authkv-dummy-password"

// NewService creates a Service. It hashes once up front to build the dummy
// encoding with the hasher's own parameters.
func NewService(store CredentialStore, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errServiceInvalid("credential store is required")
	}
	if hasher == nil {
		return nil, errServiceInvalid("password hasher is required")
	}

	s := &Service{
		store:    store,
		hasher:   hasher,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := hasher.Hash([]byte(dummyPassword))
	if err != nil {
		return nil, oops.With("operation", "build dummy encoding").Wrap(err)
	}
	s.dummy = dummy

	return s, nil
}

// Register stores a new credential record. It returns OutcomeAlreadyExists
// when the username is taken, including when a concurrent registration for
// the same username wins the race. An existing record is never modified.
func (s *Service) Register(ctx context.Context, creds Credentials) (Outcome, error) {
	errb := oops.With("operation", OperationRegister).With("username", creds.Username)

	exists, err := s.store.Exists(ctx, creds.Username)
	if err != nil {
		return OutcomeUnknown, errb.With("step", "exists").Wrap(err)
	}
	if exists {
		return s.record(ctx, OperationRegister, creds.Username, OutcomeAlreadyExists), nil
	}

	encoded, err := s.hasher.Hash([]byte(creds.Password))
	if err != nil {
		return OutcomeUnknown, errb.With("step", "hash").Wrap(err)
	}

	stored, err := s.store.SetIfAbsent(ctx, creds.Username, encoded)
	if err != nil {
		return OutcomeUnknown, errb.With("step", "set if absent").Wrap(err)
	}
	if !stored {
		return s.record(ctx, OperationRegister, creds.Username, OutcomeAlreadyExists), nil
	}

	return s.record(ctx, OperationRegister, creds.Username, OutcomeCreated), nil
}

// Authenticate checks creds against the stored record. A missing or empty
// record yields OutcomeUnknownUser after the same verification work as a real
// check.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Outcome, error) {
	stored, found, err := s.store.Get(ctx, creds.Username)
	if err != nil {
		return OutcomeUnknown, oops.
			With("operation", OperationAuthenticate).
			With("username", creds.Username).
			With("step", "get").
			Wrap(err)
	}

	if !found || stored == "" {
		_ = s.hasher.Verify(s.dummy, []byte(creds.Password))
		outcome := OutcomeUnknownUser
		if s.conceal {
			outcome = OutcomeInvalidCredentials
		}
		return s.record(ctx, OperationAuthenticate, creds.Username, outcome), nil
	}

	if !s.hasher.Verify(stored, []byte(creds.Password)) {
		return s.record(ctx, OperationAuthenticate, creds.Username, OutcomeInvalidCredentials), nil
	}
	return s.record(ctx, OperationAuthenticate, creds.Username, OutcomeAuthenticated), nil
}

func (s *Service) record(ctx context.Context, operation, username string, outcome Outcome) Outcome {
	s.recorder.RecordOutcome(operation, outcome)
	s.logger.DebugContext(ctx, "credential outcome",
		"operation", operation,
		"username", username,
		"outcome", outcome.String(),
	)
	return outcome
}
