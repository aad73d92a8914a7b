package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/session"
)

// Error codes carried in the envelope.
const (
	CodeStorageUnavailable = "storage.unavailable"
	CodeInvalidRequest     = "request.invalid"
	CodeNotFound           = "resource.not_found"
	CodeLLMUnavailable     = "llm.unavailable"
	CodeAuthUnavailable    = "auth.unavailable"
	CodeAuthRequired       = "auth.required"
	CodeInvalidCredentials = "auth.invalid_credentials"
	CodeEmailTaken         = "auth.email_taken"
	CodeForbidden          = "request.forbidden"
	CodeInternal           = "internal"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func respondInvalid(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, CodeInvalidRequest, err)
}

// respondStoreError maps errors coming out of the session store.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case session.IsUnavailable(err):
		respondError(c, http.StatusServiceUnavailable, CodeStorageUnavailable, errors.New("storage is unavailable, try again later"))
	case errors.Is(err, session.ErrConversationNotFound):
		respondError(c, http.StatusNotFound, CodeNotFound, err)
	default:
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
	}
}
