package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleSpeedtest runs the full pause → measure → resume cycle for the
// user's instances. Only the measurement failing fails the request;
// unreachable instances are skipped and torrents are always resumed.
func (s *Server) handleSpeedtest(c *gin.Context) {
	user := currentUser(c)

	result, err := s.speedtest.Run(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Speedtest failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleOrphanScan walks the user's instances for torrents with missing
// data or unregistered tracker responses. Unreachable instances are
// skipped, not fatal.
func (s *Server) handleOrphanScan(c *gin.Context) {
	user := currentUser(c)

	report, err := s.orphans.Scan(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Orphan scan failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
