package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "snappy")

	err := p.PublishBatch(context.Background(), "regimes", []Message{
		{Key: []byte("a"), Value: map[string]int{"x": 1}},
		{Key: []byte("b"), Value: "raw"},
		{Key: []byte("c"), Value: []byte("bytes")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 3)
	assert.Equal(t, "regimes", w.msgs[0].Topic)
	assert.JSONEq(t, `{"x":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))
	assert.Equal(t, []byte("c"), w.msgs[2].Key)
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "gzip")
	require.NoError(t, p.PublishBatch(context.Background(), "t", nil))
	assert.Empty(t, w.msgs)
}

func TestPublishBatchWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&recordingWriter{err: boom}, "gzip")
	err := p.PublishBatch(context.Background(), "t", []Message{{Value: "x"}})
	assert.ErrorIs(t, err, boom)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, NewProducerWithWriter(w, "gzip").Close())
	assert.True(t, w.closed)
}
