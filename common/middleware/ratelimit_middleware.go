// Package middleware holds Echo middleware shared by the API surface.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipstream/tagkeeper/common/ratelimit"
)

// WriteRateLimit throttles mutating requests against the service-wide write
// budget. Read requests pass through untouched. The limiter fails open: if
// Redis is unreachable the request proceeds, since availability of the tag
// service matters more than strict throttling.
func WriteRateLimit(limiter *ratelimit.Limiter, cfg ratelimit.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !mutating(c.Request().Method) {
				return next(c)
			}

			result, err := limiter.CheckWriteLimit(c.Request().Context(), cfg)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, "write_rate_limit_exceeded", result)
			}

			// Environment-scoped budget, keyed by the query or header the
			// deployment endpoints carry. Body parsing stays in handlers.
			if env := requestEnvironment(c); env != "" {
				result, err = limiter.CheckEnvironmentLimit(c.Request().Context(), env, cfg)
				if err != nil {
					return next(c)
				}
				if !result.Allowed {
					return tooManyRequests(c, "environment_rate_limit_exceeded", result)
				}
			}

			return next(c)
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func requestEnvironment(c echo.Context) string {
	if env := c.Request().Header.Get("X-Deploy-Environment"); env != "" {
		return env
	}
	return c.QueryParam("environment")
}

func tooManyRequests(c echo.Context, code string, result *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error": code,
		"details": map[string]interface{}{
			"limit":               result.Limit,
			"current":             result.CurrentCount,
			"retry_after_seconds": result.RetryAfterSeconds,
		},
	})
}
