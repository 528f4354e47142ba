package pubsub

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/weiawesome/market-chat/pkg/log"
)

// KafkaDialer carries every destination on a single topic. The destination
// is the message key, so a room's frames stay on one partition and keep
// their order; subscribers filter by key.
type KafkaDialer struct {
	cfg KafkaConfig
}

func NewKafkaDialer(cfg KafkaConfig) *KafkaDialer {
	return &KafkaDialer{cfg: cfg}
}

func (d *KafkaDialer) Dial(ctx context.Context) (Session, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": d.cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if _, err := p.GetMetadata(nil, false, int(timeout.Milliseconds())); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to reach kafka: %w", err)
	}

	s := &kafkaSession{
		producer: p,
		cfg:      d.cfg,
		life:     newLifecycle(),
		subs:     make(map[*kafkaSubscription]struct{}),
		reports:  make(chan struct{}),
	}

	if err := s.ensureTopic(ctx); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldDriver, DriverKafka).Msg("failed to ensure kafka topic (may already exist)")
	}

	go s.deliveryReportHandler()
	return s, nil
}

type kafkaSession struct {
	producer *kafka.Producer
	cfg      KafkaConfig
	life     *lifecycle
	reports  chan struct{}

	mu   sync.Mutex
	subs map[*kafkaSubscription]struct{}
}

// ensureTopic creates the chat topic if it doesn't exist.
func (k *kafkaSession) ensureTopic(ctx context.Context) error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.cfg.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             k.cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

// deliveryReportHandler processes producer events. Losing every broker
// or a fatal error ends the session.
func (k *kafkaSession) deliveryReportHandler() {
	defer close(k.reports)
	l := log.L()

	for e := range k.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l.Warn().Err(ev.TopicPartition.Error).Str(log.FieldDriver, DriverKafka).Msg("kafka delivery failed")
			}
		case kafka.Error:
			if ev.IsFatal() || ev.Code() == kafka.ErrAllBrokersDown {
				l.Warn().Err(ev).Str(log.FieldDriver, DriverKafka).Msg("kafka producer lost")
				go k.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, ev))
			}
		}
	}
}

func (k *kafkaSession) Publish(ctx context.Context, destination string, body []byte) error {
	if k.life.ended() {
		return ErrSessionClosed
	}

	topic := k.cfg.Topic
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(destination),
		Value: body,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Subscribe starts a consumer in its own group so every client sees every
// frame, starting from the latest offset.
func (k *kafkaSession) Subscribe(ctx context.Context, destination string, h Handler) (Subscription, error) {
	if k.life.ended() {
		return nil, ErrSessionClosed
	}

	groupID := fmt.Sprintf("%s-%s-%s", k.cfg.GroupPrefix, sanitizeGroupID(destination), uuid.NewString())
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.cfg.Brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	// Assign every partition at its current end instead of joining the
	// group: a group rebalance takes seconds, and frames produced before
	// it completes would be lost to a "latest" consumer.
	timeoutMs := 10000
	if deadline, ok := ctx.Deadline(); ok {
		timeoutMs = int(time.Until(deadline).Milliseconds())
	}
	parts, err := latestOffsets(c, k.cfg.Topic, timeoutMs)
	if err == nil {
		err = c.Assign(parts)
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to assign topic %s: %w", k.cfg.Topic, err)
	}

	sub := &kafkaSubscription{
		dest:     destination,
		consumer: c,
		session:  k,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	k.mu.Lock()
	k.subs[sub] = struct{}{}
	k.mu.Unlock()

	go sub.consume(h)
	return sub, nil
}

func (k *kafkaSession) Done() <-chan struct{} { return k.life.Done() }
func (k *kafkaSession) Err() error            { return k.life.Err() }

func (k *kafkaSession) Close() error {
	k.shutdown(nil)
	return nil
}

func (k *kafkaSession) shutdown(cause error) {
	if !k.life.end(cause) {
		return
	}

	k.mu.Lock()
	subs := k.subs
	k.subs = make(map[*kafkaSubscription]struct{})
	k.mu.Unlock()

	for sub := range subs {
		sub.halt()
	}
	for sub := range subs {
		<-sub.stopped
	}

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.reports
}

// offsetQuerier is the part of *kafka.Consumer used to find where a topic
// currently ends.
type offsetQuerier interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (low, high int64, err error)
}

// latestOffsets returns every partition of topic positioned at its high
// watermark.
func latestOffsets(q offsetQuerier, topic string, timeoutMs int) ([]kafka.TopicPartition, error) {
	if timeoutMs <= 0 {
		return nil, context.DeadlineExceeded
	}

	md, err := q.GetMetadata(&topic, false, timeoutMs)
	if err != nil {
		return nil, err
	}
	tm, ok := md.Topics[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s not found", topic)
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return nil, tm.Error
	}
	if len(tm.Partitions) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", topic)
	}

	parts := make([]kafka.TopicPartition, 0, len(tm.Partitions))
	for _, p := range tm.Partitions {
		_, high, err := q.QueryWatermarkOffsets(topic, p.ID, timeoutMs)
		if err != nil {
			return nil, fmt.Errorf("watermarks %s[%d]: %w", topic, p.ID, err)
		}
		parts = append(parts, kafka.TopicPartition{
			Topic:     &topic,
			Partition: p.ID,
			Offset:    kafka.Offset(high),
		})
	}
	return parts, nil
}

// pollCloser is the part of *kafka.Consumer the consume loop drives.
type pollCloser interface {
	Poll(timeoutMs int) kafka.Event
	Close() error
}

type kafkaSubscription struct {
	dest     string
	consumer pollCloser
	session  *kafkaSession
	stop     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func (s *kafkaSubscription) Destination() string { return s.dest }

// Unsubscribe stops delivery without waiting for the consume loop, which
// closes the consumer on its way out. It is safe to call from the handler.
func (s *kafkaSubscription) Unsubscribe() error {
	s.session.mu.Lock()
	delete(s.session.subs, s)
	s.session.mu.Unlock()
	s.halt()
	return nil
}

func (s *kafkaSubscription) halt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *kafkaSubscription) halted() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// consume polls Kafka and hands frames keyed by this destination to h.
func (s *kafkaSubscription) consume(h Handler) {
	l := log.L()
	defer func() {
		if err := s.consumer.Close(); err != nil {
			l.Debug().Err(err).Str(log.FieldDestination, s.dest).Msg("closing kafka consumer")
		}
		close(s.stopped)
	}()

	for {
		if s.halted() {
			return
		}

		ev := s.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if string(e.Key) != s.dest || s.halted() {
				continue
			}
			header := make(map[string]string, len(e.Headers))
			for _, hd := range e.Headers {
				header[hd.Key] = string(hd.Value)
			}
			h(&Message{Destination: s.dest, Body: e.Value, Header: header})

		case kafka.Error:
			l.Warn().Err(e).Str(log.FieldDestination, s.dest).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				go s.session.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, e))
				return
			}
		}
	}
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeGroupID replaces characters not suitable for Kafka group IDs.
func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
