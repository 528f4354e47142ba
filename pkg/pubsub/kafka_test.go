package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	events chan kafka.Event
	closed atomic.Bool
}

func (f *fakeConsumer) Poll(timeoutMs int) kafka.Event {
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return nil
	}
}

func (f *fakeConsumer) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeOffsets struct {
	md    *kafka.Metadata
	highs map[int32]int64
	err   error
}

func (f *fakeOffsets) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error) {
	return f.md, f.err
}

func (f *fakeOffsets) QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (int64, int64, error) {
	high, ok := f.highs[partition]
	if !ok {
		return 0, 0, errors.New("no such partition")
	}
	return 0, high, nil
}

func kafkaFrame(key, value string) *kafka.Message {
	topic := "chat-rooms"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Key:            []byte(key),
		Value:          []byte(value),
		Headers:        []kafka.Header{{Key: "trace", Value: []byte("t1")}},
	}
}

func newKafkaSub(dest string) (*kafkaSession, *kafkaSubscription, *fakeConsumer) {
	k := &kafkaSession{life: newLifecycle(), subs: make(map[*kafkaSubscription]struct{})}
	fc := &fakeConsumer{events: make(chan kafka.Event, 8)}
	sub := &kafkaSubscription{
		dest:     dest,
		consumer: fc,
		session:  k,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	k.subs[sub] = struct{}{}
	return k, sub, fc
}

func TestKafkaConsumeFiltersByKey(t *testing.T) {
	_, sub, fc := newKafkaSub("/sub/chat/room/1")

	got := make(chan *Message, 4)
	go sub.consume(collect(got))
	defer sub.Unsubscribe()

	fc.events <- kafkaFrame("/sub/chat/room/2", `{"n":0}`)
	fc.events <- kafkaFrame("/sub/chat/room/1", `{"n":1}`)

	select {
	case m := <-got:
		assert.Equal(t, "/sub/chat/room/1", m.Destination)
		assert.JSONEq(t, `{"n":1}`, string(m.Body))
		assert.Equal(t, "t1", m.Header["trace"])
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
	assert.Empty(t, got)
}

func TestKafkaUnsubscribeFromHandler(t *testing.T) {
	k, sub, fc := newKafkaSub("/sub/chat/room/1")

	var calls atomic.Int32
	returned := make(chan struct{})
	go sub.consume(func(m *Message) {
		calls.Add(1)
		sub.Unsubscribe()
		close(returned)
	})

	fc.events <- kafkaFrame("/sub/chat/room/1", `{}`)
	fc.events <- kafkaFrame("/sub/chat/room/1", `{}`)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe blocked inside the handler")
	}
	select {
	case <-sub.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop kept running")
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, fc.closed.Load())
	assert.Empty(t, k.subs)
}

func TestLatestOffsets(t *testing.T) {
	q := &fakeOffsets{
		md: &kafka.Metadata{Topics: map[string]kafka.TopicMetadata{
			"chat-rooms": {Topic: "chat-rooms", Partitions: []kafka.PartitionMetadata{{ID: 0}, {ID: 1}}},
		}},
		highs: map[int32]int64{0: 5, 1: 9},
	}

	parts, err := latestOffsets(q, "chat-rooms", 1000)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	for i, want := range []int64{5, 9} {
		assert.Equal(t, "chat-rooms", *parts[i].Topic)
		assert.Equal(t, int32(i), parts[i].Partition)
		assert.Equal(t, kafka.Offset(want), parts[i].Offset)
	}
}

func TestLatestOffsetsErrors(t *testing.T) {
	_, err := latestOffsets(&fakeOffsets{md: &kafka.Metadata{}}, "chat-rooms", 1000)
	assert.Error(t, err)

	q := &fakeOffsets{md: &kafka.Metadata{Topics: map[string]kafka.TopicMetadata{
		"chat-rooms": {Topic: "chat-rooms", Error: kafka.NewError(kafka.ErrUnknownTopicOrPart, "unknown topic", false)},
	}}}
	_, err = latestOffsets(q, "chat-rooms", 1000)
	assert.Error(t, err)

	q = &fakeOffsets{md: &kafka.Metadata{Topics: map[string]kafka.TopicMetadata{
		"chat-rooms": {Topic: "chat-rooms", Partitions: []kafka.PartitionMetadata{{ID: 3}}},
	}}}
	_, err = latestOffsets(q, "chat-rooms", 1000)
	assert.Error(t, err)

	_, err = latestOffsets(q, "chat-rooms", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "-sub-chat-room-42", sanitizeGroupID("/sub/chat/room/42"))
	assert.Equal(t, "a.b_c-d", sanitizeGroupID("a.b_c-d"))
}
