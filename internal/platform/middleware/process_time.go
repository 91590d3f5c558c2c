package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const ProcessTimeHeader = "X-Process-Time"

// ProcessTime reports handler latency in seconds on every response.
func ProcessTime() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			c.Response().Before(func() {
				elapsed := time.Since(start).Seconds()
				c.Response().Header().Set(ProcessTimeHeader, strconv.FormatFloat(elapsed, 'f', 4, 64))
			})
			return next(c)
		}
	}
}
