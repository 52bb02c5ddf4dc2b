// Package alert publishes security alerts to operators.
package alert

import (
	"context"
	"log/slog"

	"gate-system/models"
)

// Channel delivers one alert. Implementations honour ctx cancellation.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert models.SecurityAlert) error
}

// LogChannel writes alerts to the structured log. Used when no transport is
// configured.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(ctx context.Context, alert models.SecurityAlert) error {
	slog.WarnContext(ctx, "Security alert",
		"alert_type", alert.Type,
		"severity", alert.Severity,
		"jti", alert.JTI,
		"ticket_id", alert.TicketID,
		"gate_id", alert.GateID,
		"device_id", alert.DeviceID,
	)
	return nil
}

// message is the wire form shared by the transports.
func message(alert models.SecurityAlert) map[string]any {
	return map[string]any{
		"alertType": string(alert.Type),
		"severity":  string(alert.Severity),
		"jti":       alert.JTI,
		"ticketId":  alert.TicketID,
		"gateId":    alert.GateID,
		"deviceId":  alert.DeviceID,
		"timestamp": alert.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
