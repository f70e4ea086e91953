package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/metrics"
)

// MetricsMiddleware records every request by route template.
func MetricsMiddleware(reg *metrics.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			reg.RecordHTTPRequest(c.Request().Method, path, strconv.Itoa(c.Response().Status), time.Since(start))
			return nil
		}
	}
}
