package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/tradsys-core/engine/internal/errors"
)

func registerParameterRoutes(api *gin.RouterGroup, deps Deps) {
	params := api.Group("/strategies/:name/parameters")
	params.GET("/:key", getEffectiveParameterHandler(deps))
	params.PUT("/:key", setParameterHandler(deps))
	params.DELETE("/:key", resetParameterHandler(deps))
}

// getEffectiveParameterHandler resolves the effective value for
// (strategyName, callerUserID, key) through the three-tier fallback
// spec §4.3 describes.
func getEffectiveParameterHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		strategyName := c.Param("name")
		key := c.Param("key")
		userID := UserIDFromContext(c)

		value, valueType, ok, err := deps.Params.Resolve(c.Request.Context(), strategyName, userID, key)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to resolve parameter", err))
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no override on file; caller should use its hard-coded default"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": value, "value_type": valueType})
	}
}

func setParameterHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		strategyName := c.Param("name")
		key := c.Param("key")

		var req SetParameterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Key = key

		userID := req.UserID
		if userID != "" && userID != UserIDFromContext(c) && RoleOf(c) != "admin" {
			respondError(c, apperr.New(apperr.KindAuthorization, "cannot set another user's parameter override"))
			return
		}

		if err := deps.Params.Set(c.Request.Context(), strategyName, userID, req.Key, req.Value, req.ValueType); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to set parameter", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func resetParameterHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		strategyName := c.Param("name")
		key := c.Param("key")
		userID := UserIDFromContext(c)

		if err := deps.Params.Reset(c.Request.Context(), strategyName, userID, key); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to reset parameter", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
