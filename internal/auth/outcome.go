// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package auth

// Outcome is the result of a register or authenticate call that completed
// without an infrastructure failure.
type Outcome int

// Service outcomes.
const (
	OutcomeUnknown Outcome = iota
	OutcomeCreated
	OutcomeAlreadyExists
	OutcomeAuthenticated
	OutcomeUnknownUser
	OutcomeInvalidCredentials
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:            "unknown",
	OutcomeCreated:            "created",
	OutcomeAlreadyExists:      "already_exists",
	OutcomeAuthenticated:      "authenticated",
	OutcomeUnknownUser:        "unknown_user",
	OutcomeInvalidCredentials: "invalid_credentials",
}

// String returns the metric/log label for the outcome.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return outcomeNames[OutcomeUnknown]
}

// Operation names used for metrics and error context.
const (
	OperationRegister     = "register"
	OperationAuthenticate = "authenticate"
)

// OutcomeRecorder observes completed service calls.
type OutcomeRecorder interface {
	RecordOutcome(operation string, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(string, Outcome) {}
