package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/s0up4200/qbitweb/store"
)

type instanceRequest struct {
	Label    string `json:"label" binding:"required"`
	URL      string `json:"url" binding:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
	SkipAuth bool   `json:"skip_auth"`
}

// instanceResponse never exposes credentials, only whether they exist.
type instanceResponse struct {
	ID             int64     `json:"id"`
	Label          string    `json:"label"`
	URL            string    `json:"url"`
	Username       string    `json:"username"`
	HasCredentials bool      `json:"has_credentials"`
	SkipAuth       bool      `json:"skip_auth"`
	CreatedAt      time.Time `json:"created_at"`
}

func toInstanceResponse(inst store.Instance) instanceResponse {
	return instanceResponse{
		ID:             inst.ID,
		Label:          inst.Label,
		URL:            inst.URL,
		Username:       inst.QbtUsername,
		HasCredentials: inst.QbtPasswordEncrypted != "",
		SkipAuth:       inst.SkipAuth,
		CreatedAt:      inst.CreatedAt,
	}
}

func instanceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return 0, false
	}
	return id, true
}

// validateInstanceRequest enforces the credential invariant: a non-skip-auth
// instance needs both a username and a password.
func validateInstanceRequest(c *gin.Context, req *instanceRequest, hasStoredPassword bool) bool {
	if req.SkipAuth {
		return true
	}
	if req.Username == "" || (req.Password == "" && !hasStoredPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required unless skip_auth is set"})
		return false
	}
	return true
}

func (s *Server) handleListInstances(c *gin.Context) {
	user := currentUser(c)

	instances, err := s.store.ListInstances(c.Request.Context(), user.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	out := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateInstance(c *gin.Context) {
	user := currentUser(c)

	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label and url are required"})
		return
	}
	if !validateInstanceRequest(c, &req, false) {
		return
	}

	inst := store.Instance{
		UserID:   user.ID,
		Label:    req.Label,
		URL:      req.URL,
		SkipAuth: req.SkipAuth,
	}
	if !req.SkipAuth {
		encrypted, err := s.vault.Encrypt(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
			return
		}
		inst.QbtUsername = req.Username
		inst.QbtPasswordEncrypted = encrypted
	}

	if err := s.store.CreateInstance(c.Request.Context(), &inst); err != nil {
		respondStoreError(c, err)
		return
	}

	s.logger.Info().Int64("instance", inst.ID).Str("label", inst.Label).Msg("Instance created")
	c.JSON(http.StatusCreated, toInstanceResponse(inst))
}

func (s *Server) handleUpdateInstance(c *gin.Context) {
	user := currentUser(c)
	id, ok := instanceID(c)
	if !ok {
		return
	}

	existing, err := s.store.Instance(c.Request.Context(), id, user.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label and url are required"})
		return
	}
	if !validateInstanceRequest(c, &req, existing.QbtPasswordEncrypted != "") {
		return
	}

	existing.Label = req.Label
	existing.URL = req.URL
	existing.SkipAuth = req.SkipAuth

	if req.SkipAuth {
		existing.QbtUsername = ""
		existing.QbtPasswordEncrypted = ""
	} else {
		existing.QbtUsername = req.Username
		// An empty password keeps the stored one.
		if req.Password != "" {
			encrypted, err := s.vault.Encrypt(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
				return
			}
			existing.QbtPasswordEncrypted = encrypted
		}
	}

	if err := s.store.UpdateInstance(c.Request.Context(), existing); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInstanceResponse(*existing))
}

func (s *Server) handleDeleteInstance(c *gin.Context) {
	user := currentUser(c)
	id, ok := instanceID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteInstance(c.Request.Context(), id, user.ID); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleTestConnection verifies ad-hoc credentials before they are saved.
func (s *Server) handleTestConnection(c *gin.Context) {
	var req struct {
		URL      string `json:"url" binding:"required"`
		Username string `json:"username"`
		Password string `json:"password"`
		SkipAuth bool   `json:"skip_auth"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	result := s.qbtAuth.TestConnection(c.Request.Context(), req.URL, req.Username, req.Password, req.SkipAuth)
	if !result.Success {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "version": result.Version})
}

// handleTestStoredInstance verifies an instance's stored credentials.
func (s *Server) handleTestStoredInstance(c *gin.Context) {
	user := currentUser(c)
	id, ok := instanceID(c)
	if !ok {
		return
	}

	inst, err := s.store.Instance(c.Request.Context(), id, user.ID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	result := s.qbtAuth.TestStored(c.Request.Context(), inst.Qbt())
	if !result.Success {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "version": result.Version})
}
