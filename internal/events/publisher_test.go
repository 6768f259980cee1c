package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
	err           error
	closed        bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisherPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchangeName: "csv-intake", queueName: "upload.processed"}

	msg := &UploadProcessedMessage{UploadID: "u1", Status: "partial", TotalRows: 3, ValidRows: 2, InvalidRows: 1, Warnings: 1}
	require.NoError(t, p.PublishUploadProcessed(context.Background(), msg))

	assert.Equal(t, "csv-intake", ch.exchange)
	assert.Equal(t, "upload.processed", ch.key)
	assert.Equal(t, amqp091.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "u1", ch.msg.MessageId)
	assert.False(t, msg.Timestamp.IsZero())

	decoded, err := UploadProcessedMessageFromJSON(ch.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "u1", decoded.UploadID)
	assert.Equal(t, 2, decoded.ValidRows)
	assert.WithinDuration(t, msg.Timestamp, decoded.Timestamp, time.Millisecond)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisherError(t *testing.T) {
	p := &AMQPPublisher{channel: &fakeChannel{err: errors.New("channel closed")}}
	err := p.PublishUploadProcessed(context.Background(), &UploadProcessedMessage{UploadID: "u1"})
	assert.ErrorContains(t, err, "publish message")
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishUploadProcessed(context.Background(), &UploadProcessedMessage{}))
	assert.NoError(t, p.Close())
}
