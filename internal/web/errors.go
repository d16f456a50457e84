// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/token"
	"github.com/vtufest/festreg/pkg/errutil"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	status  int
	message string
}

// errorMappings fixes the status and message for every public code. Bodies
// never carry per-request data so equal codes produce identical bytes.
var errorMappings = map[string]errorMapping{
	auth.CodeValidation:            {http.StatusBadRequest, "The request is invalid"},
	auth.CodeInvalidTenant:         {http.StatusBadRequest, "The selected college is not available"},
	auth.CodeInvalidOrExpiredToken: {http.StatusBadRequest, "The reset token is invalid or has expired"},
	auth.CodeInvalidCredentials:    {http.StatusUnauthorized, "Invalid identifier or password"},
	token.CodeExpired:              {http.StatusUnauthorized, "The session has expired"},
	token.CodeInvalid:              {http.StatusUnauthorized, "The session token is invalid"},
	auth.CodeAccountDisabled:       {http.StatusForbidden, "The account is disabled"},
	auth.CodeDuplicateAccount:      {http.StatusConflict, "An account with these details already exists"},
	auth.CodeRateLimited:           {http.StatusTooManyRequests, "Too many failed attempts, try again later"},
	auth.CodeInternal:              {http.StatusInternalServerError, "An internal error occurred"},
}

// publicCode narrows err to a code the API may reveal.
func publicCode(err error) string {
	switch code := errutil.Code(err); code {
	case token.CodeExpired, token.CodeInvalid:
		return code
	}
	return auth.PublicCode(err)
}

// StatusFor returns the HTTP status for a public error code.
func StatusFor(code string) int {
	if m, ok := errorMappings[code]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := publicCode(err)
	mapping, ok := errorMappings[code]
	if !ok {
		code = auth.CodeInternal
		mapping = errorMappings[code]
	}

	if code == auth.CodeInternal {
		errutil.LogError(r.Context(), s.logger, "request failed", err)
	} else {
		errutil.LogDebug(r.Context(), s.logger, "request rejected", err)
	}

	if code == auth.CodeRateLimited {
		if wait, ok := auth.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	writeJSON(w, s.logger, mapping.status, errorBody{Error: errorDetail{Code: code, Message: mapping.message}})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
