package apiv1

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// NewAuthMiddleware requires "Authorization: Bearer <token>" when token is set.
func NewAuthMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}

			provided, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				log.Debug().
					Str("path", c.Path()).
					Bool("token_present", ok && provided != "").
					Msg("api token validation failed")
				return ErrorResponse(c, http.StatusUnauthorized, "authorization required")
			}
			return next(c)
		}
	}
}
