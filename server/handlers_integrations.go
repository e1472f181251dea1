package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/s0up4200/qbitweb/store"
)

type integrationRequest struct {
	Type   string `json:"type" binding:"required"`
	Label  string `json:"label" binding:"required"`
	URL    string `json:"url" binding:"required"`
	APIKey string `json:"api_key"`
}

type integrationResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func toIntegrationResponse(integ store.Integration) integrationResponse {
	return integrationResponse{
		ID:        integ.ID,
		Type:      integ.Type,
		Label:     integ.Label,
		URL:       integ.URL,
		CreatedAt: integ.CreatedAt,
	}
}

func (s *Server) handleListIntegrations(c *gin.Context) {
	user := currentUser(c)

	integrations, err := s.store.ListIntegrations(c.Request.Context(), user.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	out := make([]integrationResponse, 0, len(integrations))
	for _, integ := range integrations {
		out = append(out, toIntegrationResponse(integ))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateIntegration(c *gin.Context) {
	user := currentUser(c)

	var req integrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type, label, url and api_key are required"})
		return
	}

	encrypted, err := s.vault.Encrypt(req.APIKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store api key"})
		return
	}

	integ := store.Integration{
		UserID:          user.ID,
		Type:            req.Type,
		Label:           req.Label,
		URL:             req.URL,
		APIKeyEncrypted: encrypted,
	}
	if err := s.store.CreateIntegration(c.Request.Context(), &integ); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toIntegrationResponse(integ))
}

func (s *Server) handleUpdateIntegration(c *gin.Context) {
	user := currentUser(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid integration id"})
		return
	}

	existing, err := s.store.Integration(c.Request.Context(), id, user.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	var req integrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type, label and url are required"})
		return
	}

	existing.Type = req.Type
	existing.Label = req.Label
	existing.URL = req.URL
	// An empty api_key keeps the stored one.
	if req.APIKey != "" {
		encrypted, err := s.vault.Encrypt(req.APIKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store api key"})
			return
		}
		existing.APIKeyEncrypted = encrypted
	}

	if err := s.store.UpdateIntegration(c.Request.Context(), existing); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIntegrationResponse(*existing))
}

func (s *Server) handleDeleteIntegration(c *gin.Context) {
	user := currentUser(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid integration id"})
		return
	}

	if err := s.store.DeleteIntegration(c.Request.Context(), id, user.ID); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
