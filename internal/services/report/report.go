// Package report stores status reports sent by gate devices.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gate-system/internal/clock"
	"gate-system/internal/status"
	"gate-system/models"
)

const DefaultTimeout = 3 * time.Second

// DeviceVerifier validates operational device tokens.
type DeviceVerifier interface {
	VerifyDeviceToken(ctx context.Context, raw string) (*models.DeviceClaims, error)
}

// Sink appends reports. There is no update or delete.
type Sink interface {
	Save(ctx context.Context, report models.GateReport) error
}

type Service struct {
	devices DeviceVerifier
	sink    Sink
	clock   clock.Clock
	timeout time.Duration
}

func NewService(devices DeviceVerifier, sink Sink, c clock.Clock, timeout time.Duration) *Service {
	if c == nil {
		c = clock.NewSystem()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{devices: devices, sink: sink, clock: c, timeout: timeout}
}

// Submit authenticates the device and stores its report. The device token
// must name the same gate and device as the report body.
//
// Errors: status.ErrUnauthorized for a missing or rejected token,
// status.ErrDeviceMismatch when the token names another device,
// status.ErrInvalidArgument for an incomplete report. Anything else is a
// storage or secret failure.
func (s *Service) Submit(ctx context.Context, deviceToken string, req models.ReportRequest) (models.GateReport, error) {
	if strings.TrimSpace(deviceToken) == "" {
		return models.GateReport{}, status.ErrUnauthorized
	}
	claims, err := s.devices.VerifyDeviceToken(ctx, deviceToken)
	if err != nil {
		if errors.Is(err, status.ErrSecretUnavailable) {
			return models.GateReport{}, err
		}
		return models.GateReport{}, fmt.Errorf("%w: %v", status.ErrUnauthorized, err)
	}

	if err := validate(req); err != nil {
		return models.GateReport{}, err
	}
	if claims.GateID != req.GateID || claims.DeviceID != req.DeviceID {
		slog.Warn("Gate report for another device",
			"token_gate_id", claims.GateID,
			"token_device_id", claims.DeviceID,
			"gate_id", req.GateID,
			"device_id", req.DeviceID,
		)
		return models.GateReport{}, status.ErrDeviceMismatch
	}

	report := models.GateReport{
		ReportID:       uuid.NewString(),
		Timestamp:      s.clock.Now(),
		GateID:         req.GateID,
		DeviceID:       req.DeviceID,
		ReportType:     req.ReportType,
		ValidTickets:   req.ValidTickets,
		InvalidTickets: req.InvalidTickets,
		ReplayAttempts: req.ReplayAttempts,
		AvgScanTimeMs:  req.AvgScanTimeMs,
		Errors:         req.Errors,
		Message:        req.Message,
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.sink.Save(saveCtx, report); err != nil {
		return models.GateReport{}, err
	}

	slog.Info("Gate report saved", "report_id", report.ReportID, "gate_id", report.GateID, "type", report.ReportType)
	return report, nil
}

func validate(req models.ReportRequest) error {
	if req.GateID == "" || req.DeviceID == "" || req.ReportType == "" {
		return fmt.Errorf("%w: gateId, deviceId and reportType are required", status.ErrInvalidArgument)
	}
	if !req.ReportType.Valid() {
		return fmt.Errorf("%w: unknown reportType %q", status.ErrInvalidArgument, req.ReportType)
	}
	if req.ValidTickets < 0 || req.InvalidTickets < 0 || req.ReplayAttempts < 0 || req.AvgScanTimeMs < 0 {
		return fmt.Errorf("%w: counters must not be negative", status.ErrInvalidArgument)
	}
	return nil
}
