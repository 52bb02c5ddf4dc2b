package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"gate-system/models"
	"gate-system/utils"
)

type Verifier interface {
	Verify(ctx context.Context, req models.VerifyRequest) models.VerifyResult
}

type GateHandler struct {
	verifier Verifier
	redis    redis.Cmdable
}

func NewGateHandler(verifier Verifier, redisClient redis.Cmdable) *GateHandler {
	return &GateHandler{
		verifier: verifier,
		redis:    redisClient,
	}
}

// VerifyTicket answers 200 for every domain outcome, admitted or denied,
// 400 for missing parameters and 500 for internal errors.
func (h *GateHandler) VerifyTicket(c echo.Context) error {
	var req models.VerifyRequest
	if err := c.Bind(&req); err != nil {
		slog.Info("Unreadable verification request", "ip", c.RealIP(), "error", err)
		return c.JSON(http.StatusBadRequest, models.VerifyResponse{
			OK:      false,
			Reason:  models.ReasonMissingParameters,
			Message: "jwt, gateId and deviceId are required",
		})
	}

	result := h.verifier.Verify(c.Request().Context(), req)
	return c.JSON(statusCode(result.Response.Reason), result.Response)
}

func (h *GateHandler) Health(c echo.Context) error {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := utils.RedisHealthCheck(ctx, h.redis); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "redis unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func statusCode(reason models.Reason) int {
	switch reason {
	case models.ReasonMissingParameters:
		return http.StatusBadRequest
	case models.ReasonInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
