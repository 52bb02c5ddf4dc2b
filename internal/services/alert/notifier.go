package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gate-system/models"
)

const DefaultTimeout = 3 * time.Second

// Metrics counts alert deliveries. Optional.
type Metrics interface {
	TrackAlert(transport, result string)
	TrackSideEffectFailure(kind string)
}

// Notifier sends alerts in the background. The caller never waits for
// delivery and never sees its error.
type Notifier struct {
	channel Channel
	timeout time.Duration
	metrics Metrics
	wg      sync.WaitGroup
}

func NewNotifier(channel Channel, timeout time.Duration, metrics Metrics) *Notifier {
	if channel == nil {
		channel = LogChannel{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{channel: channel, timeout: timeout, metrics: metrics}
}

func (n *Notifier) Notify(alert models.SecurityAlert) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Alert channel panicked", "transport", n.channel.Name(), "panic", r)
				n.track("panic")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.channel.Send(ctx, alert); err != nil {
			slog.Error("Failed to send security alert",
				"transport", n.channel.Name(),
				"alert_type", alert.Type,
				"jti", alert.JTI,
				"gate_id", alert.GateID,
				"error", err,
			)
			n.track("failed")
			return
		}
		n.track("sent")
	}()
}

// Wait blocks until every pending alert finished or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) track(result string) {
	if n.metrics == nil {
		return
	}
	n.metrics.TrackAlert(n.channel.Name(), result)
	if result != "sent" {
		n.metrics.TrackSideEffectFailure("alert")
	}
}
