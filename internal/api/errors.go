package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/tradsys-core/engine/internal/errors"
)

// statusFor maps the error taxonomy (spec §7) onto an HTTP status code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindCredential:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransient:
		return http.StatusBadGateway
	case apperr.KindContractViolation, apperr.KindInvariant, apperr.KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err to c as the response taxonomy in spec §7
// dictates, attaching a task ID for async follow-up when present.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"error": err.Error(), "kind": string(kind)}
	var te *apperr.Error
	if apperr.As(err, &te) && te.TaskID != "" {
		body["task_id"] = te.TaskID
	}
	c.JSON(statusFor(kind), body)
}
