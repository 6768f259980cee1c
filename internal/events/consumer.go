package events

import (
	"context"
	"fmt"

	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one upload event. A returned error requeues the message.
type Handler func(ctx context.Context, msg *UploadProcessedMessage) error

// AMQPConsumer reads upload events from the queue the publisher declares.
type AMQPConsumer struct {
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	queueName string
}

// NewAMQPConsumer dials url and declares the same topology as
// NewAMQPPublisher so either side may start first.
func NewAMQPConsumer(url, exchangeName, queueName string) (*AMQPConsumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, exchangeName, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set QoS: %w", err)
	}

	return &AMQPConsumer{conn: conn, channel: ch, queueName: queueName}, nil
}

// Consume blocks until ctx is done or the broker closes the delivery channel.
func (c *AMQPConsumer) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("queue", c.queueName).Msg("Started consuming upload events")
	return consume(ctx, msgs, handler)
}

// consume acks handled messages, requeues failed ones and drops bodies that
// do not decode.
func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Stopping event consumption")
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			msg, err := UploadProcessedMessageFromJSON(d.Body)
			if err != nil {
				log.Error().Err(err).Str("message_id", d.MessageId).Msg("Failed to decode upload event")
				_ = d.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				log.Error().Err(err).Str("upload_id", msg.UploadID).Msg("Failed to handle upload event")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AMQPConsumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
