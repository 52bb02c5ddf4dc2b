package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"gate-system/models"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPChannel sends alerts to a durable queue on the default exchange.
type AMQPChannel struct {
	conn  *amqp.Connection
	ch    amqpPublisher
	queue string
}

// DialAMQP connects and declares the alert queue.
func DialAMQP(url, queue string) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}

	return &AMQPChannel{conn: conn, ch: ch, queue: queue}, nil
}

func (a *AMQPChannel) Name() string { return "amqp" }

func (a *AMQPChannel) Send(ctx context.Context, alert models.SecurityAlert) error {
	body, err := json.Marshal(message(alert))
	if err != nil {
		return err
	}

	err = a.ch.PublishWithContext(ctx,
		"",
		a.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         string(alert.Type),
			Headers: amqp.Table{
				"severity": string(alert.Severity),
			},
			Body: body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish to %s: %w", a.queue, err)
	}
	return nil
}

func (a *AMQPChannel) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
