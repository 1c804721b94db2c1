// Package services contains server-side business logic. This file implements
// UserService, which handles registration, credential checks, issuing bearer
// tokens and resolving them back to a user identity.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// UserService orchestrates the credential hasher, the token codec and the
// user store. Each operation is a single stateless request/response; the
// only shared state is the signing key and the connection pool.
type UserService struct {
	db                         *sql.DB
	repomanager                repomanager.RepositoryManager
	logger                     logging.Logger
	jwtSecret                  []byte
	loginTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:                         db,
		repomanager:                m,
		logger:                     l.With("module", "user_service"),
		jwtSecret:                  []byte(cfg.SecretKey),
		loginTokenValidityDuration: cfg.LoginTokenValidityDuration,
	}
}

// Register creates a new account with a freshly hashed password and returns
// its public projection. The store's uniqueness constraint, not the
// pre-check, is what closes the race between concurrent registrations for
// the same username: a violation surfaces as ErrAlreadyRegistered.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.PublicUser, error) {

	repo := s.repomanager.Users(s.db)

	_, err := repo.GetByUsername(ctx, username)
	if err == nil {
		return nil, common.ErrAlreadyRegistered
	}
	if !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "user lookup failed", "username", username, "error", err)
		return nil, common.ErrStoreUnavailable
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := repo.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyRegistered
		}
		s.logger.Error(ctx, "user creation failed", "username", username, "error", err)
		return nil, common.ErrStoreUnavailable
	}

	return user.Public(), nil
}

// Login checks the credentials and, on success, records the login time and
// issues a bearer token for the username. An unknown username and a wrong
// password return the identical error so usernames cannot be probed.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "user lookup failed", "username", username, "error", err)
		return "", common.ErrStoreUnavailable
	}

	if !auth.CheckPassword(password, user.HashedPassword) {
		return "", common.ErrInvalidCredentials
	}

	// Scoped write: commit-or-rollback, and a failed commit is an error,
	// not a silently lost update.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Users(tx).TouchLastLogin(ctx, username)
	})
	if err != nil {
		s.logger.Error(ctx, "updating last login failed", "username", username, "error", err)
		return "", common.ErrStoreUnavailable
	}

	token, err := auth.GenerateToken(username, s.jwtSecret, s.loginTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}

	return token, nil
}

// ResolveIdentity verifies a bearer token and returns the public projection
// of the user it was issued for. Any verification failure, including a user
// deleted after issuance, collapses into ErrInvalidCredentials; only a
// subject/expectation mismatch is reported distinctly.
func (s *UserService) ResolveIdentity(ctx context.Context, tokenString, expectedUsername string) (*models.PublicUser, error) {

	subject, err := auth.GetSubjectFromToken(tokenString, s.jwtSecret)
	if err != nil {
		return nil, common.ErrInvalidCredentials
	}

	if expectedUsername != "" && expectedUsername != subject {
		return nil, common.ErrIdentityMismatch
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "user lookup failed", "username", subject, "error", err)
		return nil, common.ErrStoreUnavailable
	}

	return user.Public(), nil
}

// StorageHealth reports whether the backing store answers a ping.
func (s *UserService) StorageHealth(ctx context.Context) bool {
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "storage ping failed", "error", err)
		return false
	}
	return true
}
