// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/authkv/authkv/pkg/errutil"
)

// accessLog logs and counts every request after it completes.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)
		if err != nil {
			// Run the error handler now so the logged status is final.
			c.Error(err)
		}

		req := c.Request()
		res := c.Response()
		latency := time.Since(start)

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}

		level := slog.LevelInfo
		if res.Status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		if res.Status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("method", req.Method),
			slog.String("route", route),
			slog.Int("status", res.Status),
			slog.Duration("latency", latency),
			slog.String("remote_ip", c.RealIP()),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			if code := errutil.Code(err); code != "" {
				attrs = append(attrs, slog.String("code", code))
			}
		}
		s.logger.LogAttrs(req.Context(), level, "http request", attrs...)

		s.recorder.RecordRequest(route, strconv.Itoa(res.Status), latency)
		if code := errutil.Code(err); strings.HasPrefix(code, "STORE_") {
			s.recorder.RecordStoreError(code)
		}
		return nil
	}
}

// handleError answers failed requests with a bare status code.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request().Context(), s.logger, slog.LevelError, "request failed", err,
			"route", c.Path())
	}

	if err := c.NoContent(status); err != nil {
		s.logger.WarnContext(c.Request().Context(), "write error response", "error", err)
	}
}
