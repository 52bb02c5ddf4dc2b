package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"gate-system/internal/status"
	"gate-system/models"
)

type ReportSubmitter interface {
	Submit(ctx context.Context, deviceToken string, req models.ReportRequest) (models.GateReport, error)
}

type ReportHandler struct {
	reports ReportSubmitter
}

func NewReportHandler(reports ReportSubmitter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// SubmitReport stores a device status report. The device authenticates with
// its operational token in the Authorization header.
func (h *ReportHandler) SubmitReport(c echo.Context) error {
	var req models.ReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ReportResponse{
			OK:      false,
			Message: "Invalid report body",
		})
	}

	report, err := h.reports.Submit(c.Request().Context(), bearerToken(c.Request()), req)
	if err != nil {
		code, message := reportError(err)
		if code == http.StatusInternalServerError {
			slog.Error("Failed to save gate report", "gate_id", req.GateID, "error", err)
		}
		return c.JSON(code, models.ReportResponse{OK: false, Message: message})
	}

	return c.JSON(http.StatusOK, models.ReportResponse{
		OK:       true,
		ReportID: report.ReportID,
		Message:  "Report saved",
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func reportError(err error) (int, string) {
	switch {
	case errors.Is(err, status.ErrUnauthorized):
		return http.StatusUnauthorized, "Valid device token required"
	case errors.Is(err, status.ErrDeviceMismatch):
		return http.StatusForbidden, "Token was issued to another device"
	case errors.Is(err, status.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Failed to save report"
	}
}
