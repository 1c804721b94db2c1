package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newUserService(t *testing.T, db *sql.DB, repo usersrepo.Repository) *UserService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:                  "k",
		LoginTokenValidityDuration: 30 * time.Minute,
	}
	return NewUserService(db, &fakeRepoManager{repo: repo}, discardLogger(), cfg)
}

type fakeUsersRepo struct {
	getOut *models.User
	getErr error

	createOut *models.User
	createErr error

	touchErr error

	createdHash string
	touchCalls  int
}

func (f *fakeUsersRepo) Create(ctx context.Context, username, hashedPassword string) (*models.User, error) {
	f.createdHash = hashedPassword
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return &models.User{Username: username, HashedPassword: hashedPassword, CreatedAt: time.Now()}, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) TouchLastLogin(ctx context.Context, username string) error {
	f.touchCalls++
	return f.touchErr
}

type fakeRepoManager struct {
	repo usersrepo.Repository
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return f.repo }

func userWithPassword(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{Username: username, HashedPassword: hash, CreatedAt: time.Now()}
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getErr: common.ErrorNotFound}
	svc := newUserService(t, db, repo)

	got, err := svc.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Nil(t, got.LastLoginAt)

	// the stored value is a salted hash of the plaintext, not the plaintext
	assert.NotEqual(t, "pw", repo.createdHash)
	assert.True(t, auth.CheckPassword("pw", repo.createdHash))
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	_, err := svc.Register(context.Background(), "alice", "pw2")
	require.ErrorIs(t, err, common.ErrAlreadyRegistered)
	assert.Empty(t, repo.createdHash, "no create must be attempted")
}

func TestRegister_RaceLostToUniqueConstraint(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getErr: common.ErrorNotFound, createErr: common.ErrAlreadyExists}
	svc := newUserService(t, db, repo)

	_, err := svc.Register(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, common.ErrAlreadyRegistered)
}

func TestRegister_StoreDown(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getErr: errors.New("connection refused")}
	svc := newUserService(t, db, repo)

	_, err := svc.Register(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	mock.ExpectBegin()
	mock.ExpectCommit()

	token, err := svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, 1, repo.touchCalls)
	require.NoError(t, mock.ExpectationsWereMet())

	claims, err := auth.ParseToken(token, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, 30*time.Minute, claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time))
}

func TestLogin_UnknownUserAndWrongPassword_SameError(t *testing.T) {
	db, _ := newMockDB(t)

	repoGhost := &fakeUsersRepo{getErr: common.ErrorNotFound}
	_, errGhost := newUserService(t, db, repoGhost).Login(context.Background(), "ghost", "anything")

	repoAlice := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	_, errWrong := newUserService(t, db, repoAlice).Login(context.Background(), "alice", "wrong")

	require.ErrorIs(t, errGhost, common.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	assert.Equal(t, errGhost.Error(), errWrong.Error())
	assert.Equal(t, 0, repoAlice.touchCalls, "failed login must not touch last_login_at")
}

func TestLogin_TouchFailurePropagates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &fakeUsersRepo{
		getOut:   userWithPassword(t, "alice", "pw"),
		touchErr: errors.New("write failed"),
	}
	svc := newUserService(t, db, repo)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_CommitFailurePropagates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

	_, err := svc.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

// --- ResolveIdentity ---

func TestResolveIdentity_Success(t *testing.T) {
	db, mock := newMockDB(t)
	user := userWithPassword(t, "alice", "pw")
	repo := &fakeUsersRepo{getOut: user}
	svc := newUserService(t, db, repo)

	mock.ExpectBegin()
	mock.ExpectCommit()

	token, err := svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	got, err := svc.ResolveIdentity(context.Background(), token, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestResolveIdentity_ExpectedUsernameMatches(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	token, err := auth.GenerateToken("alice", []byte("k"), time.Minute)
	require.NoError(t, err)

	got, err := svc.ResolveIdentity(context.Background(), token, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestResolveIdentity_IdentityMismatch(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	token, err := auth.GenerateToken("alice", []byte("k"), time.Minute)
	require.NoError(t, err)

	_, err = svc.ResolveIdentity(context.Background(), token, "bob")
	require.ErrorIs(t, err, common.ErrIdentityMismatch)
}

func TestResolveIdentity_BadToken(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getOut: userWithPassword(t, "alice", "pw")}
	svc := newUserService(t, db, repo)

	_, err := svc.ResolveIdentity(context.Background(), "not.a.jwt", "")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	expired, err := auth.GenerateToken("alice", []byte("k"), -time.Minute)
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(context.Background(), expired, "")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	wrongKey, err := auth.GenerateToken("alice", []byte("other"), time.Minute)
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(context.Background(), wrongKey, "")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestResolveIdentity_UserDeletedAfterIssuance(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &fakeUsersRepo{getErr: common.ErrorNotFound}
	svc := newUserService(t, db, repo)

	token, err := auth.GenerateToken("alice", []byte("k"), time.Minute)
	require.NoError(t, err)

	_, err = svc.ResolveIdentity(context.Background(), token, "")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
}

// --- StorageHealth ---

func TestStorageHealth(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &fakeUsersRepo{}
	svc := newUserService(t, db, repo)

	mock.ExpectPing()
	assert.True(t, svc.StorageHealth(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.False(t, svc.StorageHealth(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}
