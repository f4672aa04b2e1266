package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes balance changes keyed by session id so that
// changes of one session stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

var _ port.BalanceEventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(writer, NewCircuitBreaker("kafka-"+topic))
}

func newKafkaPublisher(writer messageWriter, breaker *gobreaker.CircuitBreaker[struct{}]) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, breaker: breaker}
}

// NewCircuitBreaker trips after at least 3 requests with a 60% failure ratio.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	var st gobreaker.Settings
	st.Name = name
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 3 && failureRatio >= 0.6
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

func (p *KafkaPublisher) Publish(ctx context.Context, change domain.BalanceChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode balance change %s: %w", change.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(change.SessionID),
		Value: body,
		Time:  change.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(change.ID)},
			{Key: "kind", Value: []byte(change.Kind)},
		},
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish balance change %s: %w", change.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
