// Package server exposes the HTTP API: authentication, instance and
// integration management, the qBittorrent pass-through proxy, and tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/s0up4200/qbitweb/config"
	"github.com/s0up4200/qbitweb/orphans"
	"github.com/s0up4200/qbitweb/qbittorrent"
	"github.com/s0up4200/qbitweb/speedtest"
	"github.com/s0up4200/qbitweb/store"
	"github.com/s0up4200/qbitweb/vault"
)

// Server wires the HTTP layer to the core components.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	vault     *vault.Vault
	qbtAuth   *qbittorrent.Auth
	proxy     *qbittorrent.Proxy
	speedtest *speedtest.Service
	orphans   *orphans.Scanner
	gate      LoginGate
	logger    zerolog.Logger
}

// New creates a Server. A nil gate defaults to AllowAll.
func New(cfg *config.Config, st *store.Store, v *vault.Vault, qbtAuth *qbittorrent.Auth, proxy *qbittorrent.Proxy, speed *speedtest.Service, scanner *orphans.Scanner, gate LoginGate, logger zerolog.Logger) *Server {
	if gate == nil {
		gate = AllowAll{}
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		vault:     v,
		qbtAuth:   qbtAuth,
		proxy:     proxy,
		speedtest: speed,
		orphans:   scanner,
		gate:      gate,
		logger:    logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	if len(s.cfg.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"*"},
			AllowCredentials: true,
		}))
	}

	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/setup", s.handleSetup)
	auth.POST("/login", s.handleLogin)
	auth.POST("/logout", s.requireAuth(), s.handleLogout)
	auth.GET("/me", s.requireAuth(), s.handleMe)

	instances := api.Group("/instances", s.requireAuth())
	instances.GET("", s.handleListInstances)
	instances.POST("", s.handleCreateInstance)
	instances.POST("/test", s.handleTestConnection)
	instances.PUT("/:id", s.handleUpdateInstance)
	instances.DELETE("/:id", s.handleDeleteInstance)
	instances.POST("/:id/test", s.handleTestStoredInstance)
	instances.Any("/:id/qbt/*path", s.handleProxy)

	integrations := api.Group("/integrations", s.requireAuth())
	integrations.GET("", s.handleListIntegrations)
	integrations.POST("", s.handleCreateIntegration)
	integrations.PUT("/:id", s.handleUpdateIntegration)
	integrations.DELETE("/:id", s.handleDeleteIntegration)

	tools := api.Group("/tools", s.requireAuth())
	tools.POST("/speedtest", s.handleSpeedtest)
	tools.POST("/orphans/scan", s.handleOrphanScan)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.sweepSessions(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweepSessions periodically removes expired browser sessions.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.DeleteExpiredWebSessions(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Session sweep failed")
			} else if removed > 0 {
				s.logger.Debug().Int64("removed", removed).Msg("Expired sessions removed")
			}
		}
	}
}
