// Package queue publishes committed event records to Kafka for downstream indexers.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/events"
)

const logModule = "queue"

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Producer writes records asynchronously. Records of one listing share a key, so
// they land on one partition and keep their commit order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.WithFields(log.Fields{"module": logModule, "count": len(messages), "err": err}).Error("event publish failed")
			}
		},
	}
	return &Producer{writer: writer}
}

func messageFor(rec events.Record) (kafka.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, err
	}
	var key []byte
	switch {
	case rec.Listing != nil:
		key = []byte(rec.Listing.String())
	case rec.Platform != nil:
		key = []byte(rec.Platform.String())
	default:
		key = []byte(rec.Actor.String())
	}
	return kafka.Message{
		Key:   key,
		Value: data,
		Time:  time.Unix(rec.Timestamp, 0).UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(rec.Kind)},
			{Key: "event_id", Value: []byte(rec.ID)},
		},
	}, nil
}

func (p *Producer) Emit(ctx context.Context, rec events.Record) {
	msg, err := messageFor(rec)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "kind": rec.Kind, "err": err}).Error("event encode failed")
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithFields(log.Fields{"module": logModule, "kind": rec.Kind, "err": err}).Error("event enqueue failed")
	}
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
