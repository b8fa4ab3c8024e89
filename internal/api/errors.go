package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/coach"
	"alcyxob/setpad/internal/editor"
	"alcyxob/setpad/internal/localstore"
	"alcyxob/setpad/internal/repository"
	"alcyxob/setpad/internal/service"
)

// respondWithError maps a service error to a status code and aborts.
// Server-side failures are logged; client mistakes are not.
func respondWithError(c *gin.Context, err error) {
	code, message := http.StatusInternalServerError, "An unexpected error occurred"

	var rateLimited *coach.RateLimitError
	switch {
	case errors.Is(err, repository.ErrUnauthenticated):
		code, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, editor.ErrLogNotFound):
		code, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrIndexOutOfRange),
		errors.Is(err, service.ErrUnknownExportFormat),
		errors.Is(err, service.ErrUnknownTemplate),
		errors.Is(err, coach.ErrEmptyImport):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, localstore.ErrStorageQuotaExceeded):
		code, message = http.StatusInsufficientStorage, err.Error()
	case errors.As(err, &rateLimited):
		seconds := int(math.Ceil(rateLimited.RetryAfter.Seconds()))
		c.Header("Retry-After", fmt.Sprint(seconds))
		code, message = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, service.ErrSaveFailed),
		errors.Is(err, service.ErrDeleteFailed),
		errors.Is(err, service.ErrExportFailed),
		errors.Is(err, coach.ErrUpstream),
		errors.Is(err, coach.ErrImportFailed):
		code, message = http.StatusBadGateway, err.Error()
	}

	if code >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	_ = c.Error(err)
	abortWithError(c, code, message)
}
