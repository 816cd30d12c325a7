package server

import (
	"net/http"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindStateViolation:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	case domain.KindExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"error", "code"} plus any extra fields. Untyped
// errors are logged and reported as a generic 500.
func abortWithError(c *gin.Context, err error, extra gin.H) {
	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}

	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		body["error"] = "Internal server error"
		body["code"] = "INTERNAL"
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		return
	}

	body["error"] = de.Message
	body["code"] = de.Code
	if de.Kind == domain.KindUpstreamFailure && de.Err != nil {
		body["details"] = de.Err.Error()
	}
	c.AbortWithStatusJSON(statusFor(de.Kind), body)
}
