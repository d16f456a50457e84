// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/pkg/errutil"
)

// Fixed messages for the anti-enumeration endpoints.
const (
	ForgotPasswordMessage = "If the account exists, a reset link has been sent"
	ResetPasswordMessage  = "Password has been reset"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type forceResetResponse struct {
	Status     auth.LoginStatus `json:"status"`
	ResetToken string           `json:"resetToken"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	Identifier string           `json:"identifier"`
	Role       auth.Role        `json:"role"`
}

type registerRequest struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	CollegeID  *int64 `json:"collegeId"`
	Password   string `json:"password"`
}

type registerResponse struct {
	AccountID int64 `json:"accountId"`
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

type resetPasswordRequest struct {
	Identifier  string `json:"identifier"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meResponse struct {
	AccountID  int64     `json:"accountId"`
	Kind       string    `json:"kind"`
	Identifier string    `json:"identifier"`
	Role       string    `json:"role"`
	CollegeID  *int64    `json:"collegeId,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// decode reads exactly one JSON object with no unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code(auth.CodeValidation).With("stage", "decode").Wrap(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code(auth.CodeValidation).With("stage", "decode").Errorf("body must contain a single JSON object")
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.auth.Login(r.Context(), auth.LoginRequest{Identifier: req.Identifier, Secret: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if result.Status == auth.LoginForceReset {
		writeJSON(w, s.logger, http.StatusOK, forceResetResponse{
			Status:     auth.LoginForceReset,
			ResetToken: result.ResetToken,
			ExpiresAt:  result.ExpiresAt,
			Identifier: result.Account.Identifier,
			Role:       result.Account.Role,
		})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, loginResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

// handleRegister self-registers a student. Staff are provisioned offline.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	account, err := s.registration.Register(r.Context(), auth.RegisterRequest{
		Kind:       auth.KindStudent,
		Name:       req.Name,
		Identifier: req.Identifier,
		Email:      req.Email,
		Phone:      req.Phone,
		CollegeID:  req.CollegeID,
		Role:       auth.RoleStudent,
		Password:   req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, registerResponse{AccountID: account.ID})
}

// handleForgotPassword answers identically whether or not the account exists.
// Storage failures are logged and still answered with the generic message.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.resets.RequestReset(r.Context(), req.Identifier); err != nil {
		if auth.PublicCode(err) == auth.CodeValidation {
			s.writeError(w, r, err)
			return
		}
		errutil.LogError(r.Context(), s.logger, "password reset request failed", err)
	}
	writeJSON(w, s.logger, http.StatusOK, messageResponse{Message: ForgotPasswordMessage})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.resets.ResetPassword(r.Context(), req.Identifier, req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, messageResponse{Message: ResetPasswordMessage})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, oops.Code(auth.CodeInternal).Errorf("session claims missing from context"))
		return
	}
	resp := meResponse{
		AccountID:  claims.AccountID,
		Kind:       claims.Kind,
		Identifier: claims.Identifier,
		Role:       claims.Role,
		CollegeID:  claims.CollegeID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}
