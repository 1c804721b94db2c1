// Package httpapi exposes the authentication service over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address        string
	users          *services.UserService
	logger         logging.Logger
	allowedOrigins []string
}

func NewServer(address string, l logging.Logger, us *services.UserService, allowedOrigins []string) *Server {
	return &Server{
		address:        address,
		logger:         l.With("module", "http_server"),
		users:          us,
		allowedOrigins: allowedOrigins,
	}
}

// Handler builds the gin engine with all routes and middleware wired.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(s.requestIDMiddleware())
	r.Use(s.accessLogMiddleware())
	r.Use(s.corsMiddleware())

	r.POST("/token", s.handleToken)
	r.POST("/register", s.handleRegister)
	r.GET("/users/:username", s.handleGetUser)
	r.GET("/health/storage_health", s.handleStorageHealth)

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
