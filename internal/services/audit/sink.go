// Package audit keeps the append-only trail of verification attempts.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gate-system/models"
)

// Sink appends audit events. There is no update or delete.
type Sink interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// MemorySink keeps events in process.
type MemorySink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(ctx context.Context, event models.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events in insertion order.
func (m *MemorySink) Events() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditEvent(nil), m.events...)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Record(ctx context.Context, event models.AuditEvent) error {
	l.logger.InfoContext(ctx, "Gate verification audit",
		"audit_id", event.AuditID,
		"result", event.Result,
		"jti", event.JTI,
		"ticket_id", event.TicketID,
		"gate_id", event.GateID,
		"device_id", event.DeviceID,
		"gatekeeper_id", event.GatekeeperID,
		"token_fingerprint", event.TokenFingerprint,
		"message", event.Message,
	)
	return nil
}

// FallbackSink appends to primary and, when that fails, writes the event to
// fallback so it survives an outage of the primary store. The primary error
// is still returned so the failure gets counted.
type FallbackSink struct {
	primary  Sink
	fallback Sink
}

func NewFallbackSink(primary, fallback Sink) *FallbackSink {
	return &FallbackSink{primary: primary, fallback: fallback}
}

func (f *FallbackSink) Record(ctx context.Context, event models.AuditEvent) error {
	err := f.primary.Record(ctx, event)
	if err == nil {
		return nil
	}
	if ferr := f.fallback.Record(context.WithoutCancel(ctx), event); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}
