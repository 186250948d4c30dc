package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/tradsys-core/engine/internal/errors"
)

// registerAPIKeyRoutes wires the admin API-key management surface (spec
// §6): save and status only. There is no migrate-worker route — this
// engine has no legacy key format to migrate from.
func registerAPIKeyRoutes(api *gin.RouterGroup, deps Deps) {
	keys := api.Group("/account/api-key")
	keys.POST("/", saveAPIKeyHandler(deps))
	keys.GET("/status", apiKeyStatusHandler(deps))
}

// saveAPIKeyHandler encrypts the caller's exchange API key/secret with
// the configured Box before handing it to storage. The plaintext never
// touches the database.
func saveAPIKeyHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		encryptedKey, err := deps.Crypto.Encrypt(req.APIKey)
		if err != nil {
			respondError(c, err)
			return
		}
		encryptedSecret, err := deps.Crypto.Encrypt(req.Secret)
		if err != nil {
			respondError(c, err)
			return
		}

		userID := UserIDFromContext(c)
		if err := deps.Users.SetAPICredentials(c.Request.Context(), userID, encryptedKey, encryptedSecret); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to store api credentials", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// apiKeyStatusHandler reports presence, never the decrypted value.
func apiKeyStatusHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		hasKey, hasSecret, err := deps.Users.APICredentialStatus(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to read api credential status", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"has_api_key": hasKey, "has_secret": hasSecret})
	}
}
