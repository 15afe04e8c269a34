package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const allowedMethods = "POST, OPTIONS"

// CORS stamps Access-Control-Allow-Origin on every response, error paths
// included, and answers preflight requests itself with 200. Allowed headers
// echo the ones the browser asked for.
func CORS(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Response().Header()
		header.Set(echo.HeaderAccessControlAllowOrigin, "*")

		if c.Request().Method != http.MethodOptions {
			return next(c)
		}

		requested := c.Request().Header.Get(echo.HeaderAccessControlRequestHeaders)
		if requested == "" {
			requested = echo.HeaderContentType
		}
		header.Set(echo.HeaderAccessControlAllowMethods, allowedMethods)
		header.Set(echo.HeaderAccessControlAllowHeaders, requested)
		return c.NoContent(http.StatusOK)
	}
}
