// Package service contains the business logic layer.
//
// Handlers parse HTTP and delegate here; services validate, enforce the
// domain rules and orchestrate repositories — they know nothing about
// status codes or request bodies. Repositories are injected as
// interfaces so tests swap in in-memory mocks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/auth"
	"github.com/mbriand/grimoire/internal/model"
	"github.com/mbriand/grimoire/internal/repository"
	"github.com/mbriand/grimoire/internal/validate"
)

// AuthService handles signup and login.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	validator *validate.Validator
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	validator *validate.Validator,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		validator: validator,
		logger:    logger,
	}
}

// LoginResult bundles what a successful login returns to the client.
type LoginResult struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// Signup registers a new account.
//
// The email must be well-formed and unused, the password at least 6
// characters. Only the bcrypt hash of the password is stored. No token
// is issued — clients log in separately.
func (s *AuthService) Signup(ctx context.Context, creds validate.Credentials) (*model.User, error) {
	if err := s.validator.CredentialsValid(&creds); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(creds.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password could not be processed")
	}

	user := &model.User{
		Email:        creds.Email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("email", creds.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login verifies credentials and issues a bearer token.
//
// An unknown email and a wrong password produce the same error, so the
// response never reveals which of the two was wrong.
func (s *AuthService) Login(ctx context.Context, creds validate.Credentials) (*LoginResult, error) {
	if err := s.validator.CredentialsValid(&creds); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("incorrect email or password")
		}
		s.logger.Error("failed to look up user",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, creds.Password); err != nil {
		return nil, apperror.Unauthorized("incorrect email or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		s.logger.Error("failed to generate token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("generating token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &LoginResult{
		UserID: user.ID,
		Token:  token,
	}, nil
}
