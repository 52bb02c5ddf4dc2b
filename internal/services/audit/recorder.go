package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gate-system/internal/clock"
	"gate-system/models"
)

const DefaultTimeout = 3 * time.Second

// Metrics counts failed side effects. Optional.
type Metrics interface {
	TrackSideEffectFailure(kind string)
}

// Recorder stamps events and writes them to a Sink. Failures are logged and
// counted, never returned: the verification decision is final before the
// audit write starts.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	clock   clock.Clock
	metrics Metrics
}

func NewRecorder(sink Sink, timeout time.Duration, c clock.Clock, metrics Metrics) *Recorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Recorder{sink: sink, timeout: timeout, clock: c, metrics: metrics}
}

// Record fills AuditID and Timestamp when unset and appends the event. It
// runs detached from ctx cancellation, bounded by the recorder timeout.
func (r *Recorder) Record(ctx context.Context, event models.AuditEvent) {
	if event.AuditID == "" {
		event.AuditID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.sink.Record(ctx, event); err != nil {
		slog.Error("Failed to write audit event",
			"audit_id", event.AuditID,
			"result", event.Result,
			"gate_id", event.GateID,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.TrackSideEffectFailure("audit")
		}
	}
}

// Fingerprint identifies a raw token without storing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
