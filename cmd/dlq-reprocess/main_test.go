package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("unexpected brokers count: got=%d want=2", len(brokers))
	}
	if brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func dlqMessageValue(t *testing.T, outboxID, aggregateID, eventType string) []byte {
	t.Helper()

	envelope := map[string]any{
		"id":             outboxID,
		"aggregate_type": "order",
		"aggregate_id":   aggregateID,
		"event_type":     eventType,
		"payload": map[string]any{
			"outbox_id":      outboxID,
			"aggregate_type": "order",
			"aggregate_id":   aggregateID,
			"event_type":     eventType,
			"payload": map[string]any{
				"order_id": aggregateID,
				"status":   "paid",
			},
			"publish_error":     "kafka timeout",
			"delivery_attempts": 3,
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal dlq envelope failed: %v", err)
	}
	return raw
}

func TestDecodeDeadLetter_Envelope(t *testing.T) {
	got, ok, err := decodeDeadLetter(dlqMessageValue(t, "outbox-1", "order-1", "order.payment_applied"))
	if err != nil {
		t.Fatalf("decodeDeadLetter failed: %v", err)
	}
	if !ok {
		t.Fatal("expected replay candidate")
	}
	if got.ID != "outbox-1" || got.EventType != "order.payment_applied" {
		t.Fatalf("unexpected replay envelope: %+v", got)
	}
	if got.AggregateID != "order-1" {
		t.Fatalf("unexpected aggregate id: %s", got.AggregateID)
	}
	if strings.Contains(string(got.Payload), "publish_error") {
		t.Fatal("replay payload must not carry dlq diagnostics")
	}
	if strings.Contains(string(got.Payload), "delivery_attempts") {
		t.Fatal("replay payload must not carry delivery counters")
	}
}

func TestDecodeDeadLetter_MissingNestedPayload(t *testing.T) {
	envelope := map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "order.payment_applied",
		"payload": map[string]any{
			"outbox_id":      "outbox-1",
			"aggregate_type": "order",
			"aggregate_id":   "order-1",
			"event_type":     "order.payment_applied",
			// nested payload intentionally omitted
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	_, ok, err := decodeDeadLetter(raw)
	if err == nil {
		t.Fatal("expected error for missing nested payload")
	}
	if ok {
		t.Fatal("expected no replay candidate")
	}
}

func TestDecodeDeadLetter_UnknownPayload(t *testing.T) {
	_, ok, err := decodeDeadLetter([]byte(`{"foo":"bar"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected message to be skipped")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=checkout.dlq",
		"-target-topic=checkout.order.events",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 2 {
			t.Fatalf("unexpected brokers count: %d", len(cfg.brokers))
		}
		if cfg.limit != 10 {
			t.Fatalf("unexpected limit: %d", cfg.limit)
		}
		if !cfg.execute {
			t.Fatal("expected execute=true")
		}
		if !cfg.fromNewest {
			t.Fatal("expected fromNewest=true")
		}
		if cfg.idleTimeout.Seconds() != 3 {
			t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
		}
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	withFlagArgs(t, []string{"-brokers="}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "kafka brokers are required") {
			t.Fatalf("expected brokers validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-source-topic="}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "source-topic is required") {
			t.Fatalf("expected source-topic validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-limit=0"}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "limit must be > 0") {
			t.Fatalf("expected limit validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-idle-timeout=0s"}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "idle-timeout must be > 0") {
			t.Fatalf("expected idle-timeout validation error, got: %v", err)
		}
	})
}

func TestReplayerPublish(t *testing.T) {
	noProducer := &replayer{cfg: config{targetTopic: "topic"}}
	if err := noProducer.publish("key", []byte(`{"x":1}`)); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	r := &replayer{cfg: config{targetTopic: "topic"}, producer: producer}
	if err := r.publish("key", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if producer.calls != 1 {
		t.Fatalf("unexpected producer calls: %d", producer.calls)
	}
	if producer.lastMsg == nil || producer.lastMsg.Topic != "topic" {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}

	producer.sendErr = errors.New("send failed")
	if err := r.publish("key", []byte(`{"x":1}`)); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestDrainPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqMessageValue(t, "outbox-1", "order-1", "order.payment_applied"),
			}}),
		},
	}

	cfg := config{
		sourceTopic: "checkout.dlq",
		targetTopic: "checkout.order.events",
		limit:       10,
		idleTimeout: 20 * time.Millisecond,
	}

	r, err := newReplayer(cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := r.drainPartition(context.Background(), 0); err != nil {
		t.Fatalf("drainPartition failed: %v", err)
	}
	if r.scanned != 1 || r.replayed != 1 || r.skipped != 0 {
		t.Fatalf("unexpected stats: scanned=%d replayed=%d skipped=%d", r.scanned, r.replayed, r.skipped)
	}
	if r.byType["order.payment_applied"] != 1 {
		t.Fatalf("unexpected per-type counters: %+v", r.byType)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestDrainPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{
		offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqMessageValue(t, "outbox-1", "order-1", "order.payment_applied"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	cfg := config{sourceTopic: "checkout.dlq", targetTopic: "checkout.order.events", limit: 10, execute: true, idleTimeout: 20 * time.Millisecond}

	r, err := newReplayer(cfg, client, consumer, producer)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := r.drainPartition(context.Background(), 0); err != nil {
		t.Fatalf("drainPartition failed: %v", err)
	}
	if r.replayed != 1 {
		t.Fatalf("expected replayed=1, got %d", r.replayed)
	}
	if producer.calls != 1 {
		t.Fatalf("expected one producer call, got %d", producer.calls)
	}

	var replay replayEnvelope
	if err := json.Unmarshal(producer.lastValue(t), &replay); err != nil {
		t.Fatalf("replay value must be a valid envelope: %v", err)
	}
	if replay.ID != "outbox-1" || replay.EventType != "order.payment_applied" {
		t.Fatalf("unexpected replay envelope: %+v", replay)
	}
}

func TestDrainPartition_SkipsBadPayload(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := config{sourceTopic: "checkout.dlq", targetTopic: "checkout.order.events", limit: 1, idleTimeout: 20 * time.Millisecond}

	pcBadPayload := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     []byte(`{"id":"x","payload":{"outbox_id":"x"}}`),
	}})
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcBadPayload}}

	r, err := newReplayer(cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := r.drainPartition(context.Background(), 0); err != nil {
		t.Fatalf("unexpected bad-payload error: %v", err)
	}
	if r.skipped != 1 {
		t.Fatalf("expected skipped=1, got %d", r.skipped)
	}
}

func TestDrainPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}
	cfg := config{sourceTopic: "checkout.dlq", targetTopic: "checkout.order.events", limit: 1, idleTimeout: 10 * time.Millisecond}

	r, err := newReplayer(cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := r.drainPartition(context.Background(), 0); err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if r.scanned != 0 {
		t.Fatalf("expected scanned=0, got %d", r.scanned)
	}
	close(idleConsumer.messages)
	close(idleConsumer.errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	canceledConsumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	canceled, err := newReplayer(cfg, client, canceledConsumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := canceled.drainPartition(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	close(canceledPC.messages)
	close(canceledPC.errors)
}

func TestReplayerRun(t *testing.T) {
	cfg := config{sourceTopic: "checkout.dlq", targetTopic: "checkout.order.events", limit: 1, idleTimeout: 20 * time.Millisecond}

	if _, err := newReplayer(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqMessageValue(t, "outbox-1", "order-1", "order.payment_applied"),
			}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 2,
				Offset:    0,
				Value:     dlqMessageValue(t, "outbox-2", "order-2", "order.payment_failed"),
			}}),
		},
	}

	r, err := newReplayer(cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(consumer.calls) != 1 {
		t.Fatalf("expected one partition due limit=1, got calls=%d", len(consumer.calls))
	}
	if consumer.calls[0].partition != 0 {
		t.Fatalf("expected first sorted partition=0, got %d", consumer.calls[0].partition)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if _, err := newReplayer(executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	emptyClient := &stubOffsetClient{partitions: nil}
	empty, err := newReplayer(cfg, emptyClient, consumer, nil)
	if err != nil {
		t.Fatalf("newReplayer failed: %v", err)
	}
	if err := empty.run(context.Background()); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := config{sourceTopic: "checkout.dlq", targetTopic: "checkout.order.events", limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqMessageValue(t, "outbox-1", "order-1", "order.payment_applied"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) lastValue(t *testing.T) []byte {
	t.Helper()
	if s.lastMsg == nil {
		t.Fatal("no message was produced")
	}
	value, err := s.lastMsg.Value.Encode()
	if err != nil {
		t.Fatalf("encode produced value: %v", err)
	}
	return value
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
