package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/totem/totem/internal/platform/apierror"
)

// RequestTimeout puts a deadline on the request context. Store calls observe
// it, so a handler that runs past the deadline returns a context error, which
// is turned into a 504 REQUEST_TIMEOUT unless a response was already written.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return apierror.GatewayTimeout()
			}
			return err
		}
	}
}
