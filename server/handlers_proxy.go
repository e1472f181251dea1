package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

// handleProxy relays an arbitrary Web API call to the addressed instance.
// The wildcard path ("/v2/torrents/info") plus the inbound query string are
// forwarded verbatim; the response is relayed with status, headers, and
// body unchanged.
func (s *Server) handleProxy(c *gin.Context) {
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

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	result, err := s.proxy.Forward(
		c.Request.Context(),
		inst.Qbt(),
		c.Param("path"),
		c.Request.URL.RawQuery,
		c.Request.Method,
		c.Request.Header,
		body,
	)
	if err != nil {
		var authErr *qbittorrent.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": authErr.Result.Reason})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "connection to instance failed"})
		return
	}

	for key, values := range result.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(result.StatusCode)
	c.Writer.Write(result.Body)
}
