package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
)

// NewRouter builds the Echo instance serving the gate API. The report route
// is only mounted when report is non-nil. middlewares wrap the POST routes.
func NewRouter(gate *GateHandler, report *ReportHandler, middlewares ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(RequestLogger(), CORS())

	g := e.Group("/api/v1/gate")
	g.GET("/health", gate.Health)
	g.POST("/verify", gate.VerifyTicket, middlewares...)
	g.OPTIONS("/verify", preflight)
	if report != nil {
		g.POST("/report", report.SubmitReport, middlewares...)
		g.OPTIONS("/report", preflight)
	}

	return e
}

func preflight(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// CORS sets the headers gate terminals running in a browser need.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			return next(c)
		}
	}
}

func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Info("=> gate request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"ip", c.RealIP(),
				"duration", time.Since(start),
			)
			return err
		}
	}
}
