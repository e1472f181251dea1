package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleSetup creates the first (and only) account. Once a user exists the
// endpoint is closed.
func (s *Server) handleSetup(c *gin.Context) {
	count, err := s.store.CountUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "setup already completed"})
		return
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), req.Username, string(hash))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info().Str("username", user.Username).Msg("Initial user created")
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username})
}

func (s *Server) handleLogin(c *gin.Context) {
	addr := c.ClientIP()
	if !s.gate.Allow(addr) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := s.store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.gate.Record(addr, false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	s.gate.Record(addr, true)

	sessionID := uuid.NewString()
	expires := time.Now().Add(s.cfg.Server.SessionTTL)
	if err := s.store.CreateWebSession(c.Request.Context(), sessionID, user.ID, expires); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookieName, sessionID, int(s.cfg.Server.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

func (s *Server) handleLogout(c *gin.Context) {
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		if err := s.store.DeleteWebSession(c.Request.Context(), cookie); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete web session")
		}
	}
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleMe(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}
