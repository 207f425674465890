package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/dto"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInsufficientCredits:
		return http.StatusPaymentRequired
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindUpstreamFailure, domain.KindInternal:
		return http.StatusInternalServerError
	}
	panic("unhandled error kind " + kind.String())
}

// RespondError writes err as a JSON error body and aborts the chain.
// Unclassified errors are logged and hidden behind a generic message.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "INTERNAL",
			Message: "internal server error",
		})
		return
	}

	body := dto.ErrorResponse{Error: de.Code, Message: de.Message}
	switch de.Kind {
	case domain.KindUpstreamFailure:
		logger.Error("Upstream failure",
			slog.String("path", c.FullPath()),
			slog.String("code", de.Code),
			slog.Any("error", err),
		)
	case domain.KindInsufficientCredits:
		body.Balance = de.Balance
	case domain.KindRateLimited:
		ms := de.RetryAfter.Milliseconds()
		body.RetryAfterMs = &ms
		secs := int64(math.Ceil(de.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(max(secs, 1), 10))
	}
	c.AbortWithStatusJSON(StatusFor(de.Kind), body)
}

// invalidBody wraps a binding failure.
func invalidBody(err error) error {
	return &domain.Error{
		Kind:    domain.KindInvalidInput,
		Code:    "INVALID_BODY",
		Message: "invalid request body",
		Err:     err,
	}
}
