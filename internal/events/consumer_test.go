package events

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	records []ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.records = append(f.records, ackRecord{tag: tag, acked: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestConsume(t *testing.T) {
	ack := &fakeAcknowledger{}
	msgs := make(chan amqp091.Delivery, 3)

	good, err := (&UploadProcessedMessage{UploadID: "u1", Status: "completed"}).ToJSON()
	require.NoError(t, err)
	retry, err := (&UploadProcessedMessage{UploadID: "u2", Status: "partial"}).ToJSON()
	require.NoError(t, err)

	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: good}
	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}
	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: retry}
	close(msgs)

	var handled []string
	err = consume(context.Background(), msgs, func(_ context.Context, msg *UploadProcessedMessage) error {
		handled = append(handled, msg.UploadID)
		if msg.UploadID == "u2" {
			return errors.New("repository unavailable")
		}
		return nil
	})
	assert.ErrorContains(t, err, "delivery channel closed")

	assert.Equal(t, []string{"u1", "u2"}, handled)
	assert.Equal(t, []ackRecord{
		{tag: 1, acked: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: true},
	}, ack.records)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := consume(ctx, make(chan amqp091.Delivery), func(context.Context, *UploadProcessedMessage) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
