package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/repository"
)

// statusFor maps an error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable, domain.ErrCodeStorage
	}

	code := domain.ErrorCode(err)
	switch code {
	case domain.ErrCodeValidation, domain.ErrCodeIndexOutOfRange, domain.ErrCodeInvalidQuantity:
		return http.StatusBadRequest, code
	case domain.ErrCodeInvalidTransition:
		return http.StatusConflict, code
	case domain.ErrCodeNotFound, domain.ErrCodeUnknownNode:
		return http.StatusNotFound, code
	default:
		return http.StatusInternalServerError, code
	}
}

// respondError writes err as an APIError. Internal details stay in the log.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithField("request_id", c.GetString(requestIDKey)).WithError(err).Error("Request failed")
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, "", c.GetString(requestIDKey)))
}

// badRequest reports a malformed request body or parameter.
func badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrCodeInvalidInput, message, details, c.GetString(requestIDKey)))
}
