package alert

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go"

	"gate-system/models"
)

// PubNubChannel publishes alerts to a PubNub channel watched by the
// security dashboard.
type PubNubChannel struct {
	channel string
	publish func(channel string, msg map[string]any) error
}

func NewPubNubChannel(pn *pubnub.PubNub, channel string) *PubNubChannel {
	return &PubNubChannel{
		channel: channel,
		publish: func(channel string, msg map[string]any) error {
			_, _, err := pn.Publish().
				Channel(channel).
				Message(msg).
				Execute()
			return err
		},
	}
}

func (p *PubNubChannel) Name() string { return "pubnub" }

// Send publishes the alert. The client call has no context, so a late
// publish may still land after ctx is done.
func (p *PubNubChannel) Send(ctx context.Context, alert models.SecurityAlert) error {
	done := make(chan error, 1)
	go func() {
		done <- p.publish(p.channel, message(alert))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pubnub publish to %s: %w", p.channel, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
