package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// Failure bodies mirror the boundary contract: credential problems are
// deliberately opaque so callers cannot tell which part of the check failed.
const (
	msgBadCredentials    = "Incorrect username or password"
	msgInvalidToken      = "Could not validate credentials"
	msgIdentityMismatch  = "username given does not match with username from token"
	msgAlreadyRegistered = "User already registered"
	msgStoreUnavailable  = "storage temporarily unavailable"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func respondDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func respondUnauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Bearer")
	respondDetail(c, http.StatusUnauthorized, detail)
}

// handleToken implements POST /token: form-encoded credentials in, bearer
// token out. Unknown user and wrong password produce identical responses.
func (s *Server) handleToken(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	token, err := s.users.Login(c.Request.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCredentials):
			respondUnauthorized(c, msgBadCredentials)
		case errors.Is(err, common.ErrStoreUnavailable):
			respondDetail(c, http.StatusServiceUnavailable, msgStoreUnavailable)
		default:
			s.logger.Error(c.Request.Context(), "login failed", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// handleRegister implements POST /register with a JSON body.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAlreadyRegistered):
			respondDetail(c, http.StatusBadRequest, msgAlreadyRegistered)
		case errors.Is(err, common.ErrStoreUnavailable):
			respondDetail(c, http.StatusServiceUnavailable, msgStoreUnavailable)
		default:
			s.logger.Error(c.Request.Context(), "registration failed", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
		return
	}

	s.logger.Info(c.Request.Context(), "user registered", "username", user.Username)
	c.JSON(http.StatusCreated, user)
}

// handleGetUser implements GET /users/:username, resolving the bearer token
// and requiring its subject to match the path username.
func (s *Server) handleGetUser(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		respondUnauthorized(c, msgInvalidToken)
		return
	}

	user, err := s.users.ResolveIdentity(c.Request.Context(), token, c.Param("username"))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrIdentityMismatch):
			respondUnauthorized(c, msgIdentityMismatch)
		case errors.Is(err, common.ErrInvalidCredentials):
			respondUnauthorized(c, msgInvalidToken)
		case errors.Is(err, common.ErrStoreUnavailable):
			respondDetail(c, http.StatusServiceUnavailable, msgStoreUnavailable)
		default:
			s.logger.Error(c.Request.Context(), "identity resolution failed", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// handleStorageHealth always answers 200 and reports store reachability in
// the body.
func (s *Server) handleStorageHealth(c *gin.Context) {
	status := "Online"
	if !s.users.StorageHealth(c.Request.Context()) {
		status = "Offline"
	}
	c.JSON(http.StatusOK, gin.H{"Database Status": status})
}

// bearerToken extracts the credential from an "Authorization: Bearer x"
// header. The scheme comparison is case-insensitive.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
