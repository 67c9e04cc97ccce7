package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtroce/sioux/internal/adminauth"
	"github.com/xtroce/sioux/internal/bayeux"
	"github.com/xtroce/sioux/internal/pubsub"
)

const adminTokenTTL = time.Hour

type tokenRequest struct {
	Secret string `json:"secret"`
}

// handleIssueToken trades the bootstrap admin secret for a short-lived
// bearer token, mirroring the challenge/verify shape of the teacher's
// auth handler but collapsed to a single shared secret instead of
// per-user ed25519 keys.
func handleIssueToken(adminSecretHash string, manager *adminauth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
			return
		}
		if !adminauth.VerifySecret(adminSecretHash, req.Secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
			return
		}
		token, err := manager.IssueToken(adminTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": int(adminTokenTTL.Seconds())})
	}
}

// handleUpdateNode lets an operator push a node value directly, bypassing
// the Bayeux publish/adapter path entirely (spec supplement: administrative
// node injection for demos and tests).
func handleUpdateNode(registry *pubsub.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := strings.TrimPrefix(c.Param("channel"), "/")
		name, ok := bayeux.ChannelToName("/" + channel)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
			return
		}
		body, err := c.GetRawData()
		if err != nil || !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
		registry.UpdateNode(name, json.RawMessage(body))
		c.JSON(http.StatusOK, gin.H{"channel": channel})
	}
}

// handleStatus reports coarse process health for operator dashboards.
func handleStatus(connector *bayeux.Connector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"activeSessions": connector.Len()})
	}
}
