// Package errors: gin middleware translating a ClimatoologyError into
// the gateway's HTTP response via an ErrorHandler/Recovery middleware
// pair.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandler logs and converts the last error attached to the gin
// context into a JSON Response with the Kind-derived status code.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := HTTPStatus(KindOf(err))
		if status >= 500 {
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		} else {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
		}
		c.JSON(status, ToResponse(err))
	}
}

// Recovery recovers from a panic in a handler and reports it as an
// internal error rather than crashing the process.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
					Error:   string(KindUnexpected),
					Message: "an unexpected error occurred",
				})
			}
		}()
		c.Next()
	}
}

// Abort attaches err to the gin context and immediately writes its
// mapped HTTP response.
func Abort(c *gin.Context, err error) {
	status := HTTPStatus(KindOf(err))
	c.Error(err)
	c.AbortWithStatusJSON(status, ToResponse(err))
}
