package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the user store contract consumed by the authentication
// service.
type Repository interface {
	// Create inserts a new user record. The database uniqueness
	// constraint is the authority on duplicate usernames; a violation is
	// reported as common.ErrAlreadyExists.
	Create(ctx context.Context, username, hashedPassword string) (*models.User, error)

	// GetByUsername returns common.ErrorNotFound when no such user exists.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// TouchLastLogin sets last_login_at to the current time. Failures are
	// returned to the caller, never swallowed.
	TouchLastLogin(ctx context.Context, username string) error
}
