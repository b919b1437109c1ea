// Package feed publishes persisted chat messages to a Kafka topic for
// downstream consumers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-directmessages/internal/types"
	"github.com/segmentio/kafka-go"
)

const KindMessageCreated = "message.created"

type Publisher interface {
	PublishMessage(ctx context.Context, msg types.Message) error
	Close() error
}

// Record is the value written for every persisted message.
type Record struct {
	Id          string        `json:"id"`
	Kind        string        `json:"kind"`
	Message     types.Message `json:"message"`
	PublishedAt time.Time     `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   messageWriter
	log *log.Logger
}

// NewKafkaPublisher returns an asynchronous publisher. Records are keyed
// by chat id so a chat's messages land on one partition in order.
func NewKafkaPublisher(brokers []string, topic string, logger *log.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Printf("feed: failed to deliver %d record(s): %v", len(msgs), err)
			}
		},
	}

	return &KafkaPublisher{w: w, log: logger}
}

func newRecord(msg types.Message) (kafka.Message, error) {
	value, err := json.Marshal(Record{
		Id:          uuid.NewString(),
		Kind:        KindMessageCreated,
		Message:     msg,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal record: %w", err)
	}

	return kafka.Message{
		Key:   []byte(strconv.Itoa(msg.Chat)),
		Value: value,
	}, nil
}

func (p *KafkaPublisher) PublishMessage(ctx context.Context, msg types.Message) error {
	record, err := newRecord(msg)
	if err != nil {
		return err
	}

	if err := p.w.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishMessage(context.Context, types.Message) error { return nil }
func (NopPublisher) Close() error                                        { return nil }
