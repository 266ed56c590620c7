package utils

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Ctx возвращает контекст запроса с таймаутом.
func Ctx(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}
