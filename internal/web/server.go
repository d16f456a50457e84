// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package web is the JSON HTTP boundary over the auth services.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/token"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Authenticator logs accounts in.
type Authenticator interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Account, error)
}

// PasswordResetter runs the forgot/reset flow.
type PasswordResetter interface {
	RequestReset(ctx context.Context, identifier string) (string, error)
	ResetPassword(ctx context.Context, identifier, resetToken, newPassword string) error
}

// TokenVerifier checks session tokens.
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveHTTP(string, string, int, time.Duration) {}

// Deps are the collaborators a Server needs. Metrics and Logger are optional.
type Deps struct {
	Auth         Authenticator
	Registration Registrar
	Resets       PasswordResetter
	Verifier     TokenVerifier
	Metrics      HTTPObserver
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Server routes the public API.
type Server struct {
	auth         Authenticator
	registration Registrar
	resets       PasswordResetter
	verifier     TokenVerifier
	metrics      HTTPObserver
	logger       *slog.Logger
	maxBodyBytes int64
	router       chi.Router
}

// NewServer validates deps and builds the router.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("authenticator is required")
	case deps.Registration == nil:
		return nil, oops.Errorf("registrar is required")
	case deps.Resets == nil:
		return nil, oops.Errorf("password resetter is required")
	case deps.Verifier == nil:
		return nil, oops.Errorf("token verifier is required")
	}

	s := &Server{
		auth:         deps.Auth,
		registration: deps.Registration,
		resets:       deps.Resets,
		verifier:     deps.Verifier,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		maxBodyBytes: deps.MaxBodyBytes,
	}
	if s.metrics == nil {
		s.metrics = noopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)
	r.Post("/forgot-password", s.handleForgotPassword)
	r.Post("/reset-password", s.handleResetPassword)
	r.With(s.requireSession).Get("/me", s.handleMe)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
