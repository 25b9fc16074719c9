// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/internal/store"
	"github.com/authkv/authkv/pkg/errutil"
)

// CodeBadRequest marks a body that is not valid credentials JSON.
const CodeBadRequest = "BAD_REQUEST"

// outcomeStatus maps each business outcome to its response status.
var outcomeStatus = map[auth.Outcome]int{
	auth.OutcomeCreated:            http.StatusCreated,
	auth.OutcomeAlreadyExists:      http.StatusBadRequest,
	auth.OutcomeAuthenticated:      http.StatusOK,
	auth.OutcomeUnknownUser:        http.StatusBadRequest,
	auth.OutcomeInvalidCredentials: http.StatusUnauthorized,
}

// StatusForOutcome returns the response status for outcome.
func StatusForOutcome(outcome auth.Outcome) int {
	if status, ok := outcomeStatus[outcome]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForError returns the response status for a failed request.
func StatusForError(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errutil.Code(err) == CodeBadRequest:
		return http.StatusBadRequest
	case store.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &httpErr):
		return httpErr.Code
	default:
		return http.StatusInternalServerError
	}
}

type credentialOp func(ctx context.Context, creds auth.Credentials) (auth.Outcome, error)

func (s *Server) handleRegister(c echo.Context) error {
	return s.handleCredentials(c, s.svc.Register)
}

func (s *Server) handleLogin(c echo.Context) error {
	return s.handleCredentials(c, s.svc.Authenticate)
}

func (s *Server) handleCredentials(c echo.Context, op credentialOp) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		// Oversize bodies surface here as *echo.HTTPError from the body limit.
		return err
	}

	creds, err := decodeCredentials(body)
	if err != nil {
		return err
	}

	outcome, err := op(c.Request().Context(), creds)
	if err != nil {
		return err
	}
	return c.NoContent(StatusForOutcome(outcome))
}
